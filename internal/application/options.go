package application

import (
	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/parley/internal/logger"
)

type options struct {
	logger        *log.Logger
	meterProvider metric.MeterProvider
}

// Option configures the ambient dependencies of application services.
type Option func(*options)

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Discard()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	return o
}

func (o options) component(name string) *log.Logger {
	return logger.Component(o.logger, name)
}

func (o options) meter(name string) metric.Meter {
	return o.meterProvider.Meter("parley/" + name)
}
