// Package mux binds the application routes into a configured http.Handler.
package mux

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apifindings "github.com/leakwatch/leakwatch/internal/api/findings"
	"github.com/leakwatch/leakwatch/internal/api/mid"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
	"github.com/leakwatch/leakwatch/pkg/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build  string
	Log    *logger.Logger
	Tracer trace.Tracer

	FindingService *apifindings.Service

	// ScanLimiter throttles scan submissions. Nil disables throttling.
	ScanLimiter *rate.Limiter

	// Ready backs the readiness endpoint, typically a database ping.
	Ready func(ctx context.Context) error
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	app := web.NewApp(
		logger,
		cfg.Tracer,
		mid.Otel(cfg.Tracer),
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
	)

	routeAdder.Add(app, cfg)

	return app
}
