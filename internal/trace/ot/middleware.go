// Package ot wraps HTTP handlers and clients with opentracing
// instrumentation tied to the global tracer.
package ot

import (
	"net/http"

	"github.com/opentracing-contrib/go-stdlib/nethttp"
	"github.com/opentracing/opentracing-go"
)

// Middleware instruments h so that a server span covers each request, named
// by method and path.
func Middleware(h http.Handler, opts ...nethttp.MWOption) http.Handler {
	return MiddlewareWithTracer(opentracing.GlobalTracer(), h, opts...)
}

// MiddlewareWithTracer is Middleware with an explicit tracer.
func MiddlewareWithTracer(tr opentracing.Tracer, h http.Handler, opts ...nethttp.MWOption) http.Handler {
	allOpts := append([]nethttp.MWOption{
		nethttp.OperationNameFunc(func(r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	}, opts...)

	return nethttp.Middleware(tr, h, allOpts...)
}
