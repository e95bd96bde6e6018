// Package routes binds the service's route groups.
package routes

import (
	apifindings "github.com/leakwatch/leakwatch/internal/api/findings"
	"github.com/leakwatch/leakwatch/internal/api/health"
	"github.com/leakwatch/leakwatch/internal/api/mux"
	"github.com/leakwatch/leakwatch/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build: cfg.Build,
		Log:   cfg.Log,
		Ready: cfg.Ready,
	})

	apifindings.Routes(app, apifindings.Config{
		Log:     cfg.Log,
		Service: cfg.FindingService,
		Limiter: cfg.ScanLimiter,
	})
}
