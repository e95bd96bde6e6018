// Package mid provides app level middleware support.
package mid

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leakwatch/leakwatch/pkg/common/logger"
	"github.com/leakwatch/leakwatch/pkg/web"
)

// Otel starts the otel tracing and stores the traceid in the context.
func Otel(tracer trace.Tracer) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			ctx, span := tracer.Start(ctx, "request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", r.URL.Path),
				),
			)
			defer span.End()

			return next(ctx, r)
		}

		return h
	}

	return m
}

// Logger writes information about the request to the logs.
func Logger(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			now := time.Now()

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = path + "?" + r.URL.RawQuery
			}

			log.Info(ctx, "request started", "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr)

			resp := next(ctx, r)

			var statusCode = statusOf(resp)
			log.Info(ctx, "request completed", "method", r.Method, "path", path,
				"remoteaddr", r.RemoteAddr, "statuscode", statusCode, "since", time.Since(now).String())

			return resp
		}

		return h
	}

	return m
}

func statusOf(resp web.Encoder) int {
	switch v := resp.(type) {
	case interface{ HTTPStatus() int }:
		return v.HTTPStatus()
	case error:
		return http.StatusInternalServerError
	default:
		if resp == nil {
			return http.StatusNoContent
		}
		return http.StatusOK
	}
}
