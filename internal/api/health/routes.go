// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/leakwatch/leakwatch/pkg/common/logger"
	"github.com/leakwatch/leakwatch/pkg/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build string
	Log   *logger.Logger

	// Ready reports whether downstream dependencies can serve traffic,
	// typically a database ping. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Routes binds all the health check endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodGet, version, "/health", liveness(cfg))
	app.HandlerFunc(http.MethodGet, version, "/readiness", readiness(cfg))
}

// healthResponse represents the response for health check.
type healthResponse struct {
	Status string `json:"status"`
	Build  string `json:"build"`
}

// Encode implements the web.Encoder interface.
func (hr healthResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(hr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func liveness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return healthResponse{
			Status: "ok",
			Build:  cfg.Build,
		}
	}
}

// readyResponse represents the response for readiness check.
type readyResponse struct {
	Status string `json:"status"`
}

// Encode implements the web.Encoder interface.
func (rr readyResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus implements the httpStatus interface to set the response status code.
func (rr readyResponse) HTTPStatus() int {
	if rr.Status != "ready" {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func readiness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		if cfg.Ready != nil {
			if err := cfg.Ready(ctx); err != nil {
				cfg.Log.Error(ctx, "Readiness check failed", "error", err.Error())
				return readyResponse{Status: "not ready"}
			}
		}
		return readyResponse{Status: "ready"}
	}
}
