package graph

import (
	"github.com/oneconcern/smartes/pkg/imports"
	"go.uber.org/zap"
)

// Option for the schema builder
type Option func(*Builder)

// Extractor sets the import syntax recognized by the builder
func Extractor(e imports.Extractor) Option {
	return func(b *Builder) {
		if e != nil {
			b.extractor = e
		}
	}
}

// Logger for the builder
func Logger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.l = l
		}
	}
}
