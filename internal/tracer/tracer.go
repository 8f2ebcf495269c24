// Package tracer initializes the global opentracing tracer from the
// environment.
package tracer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/inconshreveable/log15"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegermetrics "github.com/uber/jaeger-lib/metrics"

	"github.com/opentracing/opentracing-go"
)

// Init installs a Jaeger tracer as the opentracing global tracer. The agent
// endpoint, sampling, and the disabled switch all come from the standard
// JAEGER_* environment variables. When initialization fails the no-op
// tracer stays installed and the process carries on.
func Init() {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		log15.Error("failed to read jaeger config from env", "error", err)
		return
	}

	if cfg.Disabled {
		return
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = filepath.Base(os.Args[0])
	}

	tracer, _, err := cfg.NewTracer(
		jaegercfg.Logger(jaegerLogger{}),
		jaegercfg.Metrics(jaegermetrics.NullFactory),
	)
	if err != nil {
		log15.Error("failed to initialize jaeger tracer", "error", err)
		return
	}

	opentracing.SetGlobalTracer(tracer)
}

type jaegerLogger struct{}

func (jaegerLogger) Error(msg string) {
	log15.Error(msg)
}

func (jaegerLogger) Infof(msg string, args ...interface{}) {
	log15.Info(fmt.Sprintf(msg, args...))
}
