// Package web provides a small web framework extension around the standard
// library mux to bind application level context to handlers, consistent
// response encoding, and middleware support.
package web

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Logger represents a function that will be called to add information
// to the logs.
type Logger func(ctx context.Context, msg string, args ...any)

// HandlerFunc represents a function that handles a http request within
// our own little mini framework.
type HandlerFunc func(ctx context.Context, r *http.Request) Encoder

// App is the entrypoint into our application and what configures our context
// object for each of our http handlers.
type App struct {
	log    Logger
	tracer trace.Tracer
	mux    *http.ServeMux
	otmux  http.Handler
	mw     []MidFunc
}

// NewApp creates an App value that handles a set of routes for the
// application.
func NewApp(log Logger, tracer trace.Tracer, mw ...MidFunc) *App {
	mux := http.NewServeMux()

	return &App{
		log:    log,
		tracer: tracer,
		mux:    mux,
		otmux:  otelhttp.NewHandler(mux, "request"),
		mw:     mw,
	}
}

// ServeHTTP implements the http.Handler interface. It's the entry point for
// all http traffic and allows the opentelemetry mux to run first to handle
// tracing. The opentelemetry mux then calls the application mux to handle
// application traffic.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.otmux.ServeHTTP(w, r)
}

// HandlerFunc sets a handler function for a given HTTP method and path pair
// to the application server mux.
func (a *App) HandlerFunc(method string, group string, path string, handlerFunc HandlerFunc, mw ...MidFunc) {
	handlerFunc = wrapMiddleware(mw, handlerFunc)
	handlerFunc = wrapMiddleware(a.mw, handlerFunc)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx := setTracer(r.Context(), a.tracer)
		ctx = setWriter(ctx, w)

		resp := handlerFunc(ctx, r)

		if err := Respond(ctx, w, resp); err != nil {
			a.log(ctx, "web: respond error", "error", err)
		}
	}

	finalPath := path
	if group != "" {
		finalPath = "/" + group + path
	}
	pattern := fmt.Sprintf("%s %s", method, finalPath)

	a.mux.HandleFunc(pattern, h)
}

// RawHandlerFunc sets a raw http.HandlerFunc for a given HTTP method and
// path pair to the application server mux, bypassing response encoding.
func (a *App) RawHandlerFunc(method string, group string, path string, rawHandler http.HandlerFunc) {
	finalPath := path
	if group != "" {
		finalPath = "/" + group + path
	}
	pattern := fmt.Sprintf("%s %s", method, finalPath)

	a.mux.HandleFunc(pattern, rawHandler)
}

// Param returns the web call parameters from the request.
func Param(r *http.Request, key string) string {
	return r.PathValue(key)
}
