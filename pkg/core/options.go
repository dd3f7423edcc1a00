package core

import (
	"github.com/oneconcern/smartes/pkg/graph"
	"github.com/oneconcern/smartes/pkg/transform"
	"go.uber.org/zap"
)

// Option for the service
type Option func(*Service)

// Logger for the service
func Logger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.l = l
		}
	}
}

// Builder overrides the schema builder, e.g. to recognize another import syntax
func Builder(b *graph.Builder) Option {
	return func(s *Service) {
		s.builder = b
	}
}

// Transformer overrides the content transformer
func Transformer(t *transform.Transformer) Option {
	return func(s *Service) {
		s.transformer = t
	}
}

// WithMetrics collects the service metrics. Defaults to unregistered collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}
