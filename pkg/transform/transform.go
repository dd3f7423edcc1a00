// Package transform rewrites the imports of a module to the versioned paths of its dependencies.
package transform

import (
	"bytes"

	"github.com/oneconcern/smartes/pkg/imports"
	"github.com/oneconcern/smartes/pkg/model"
)

// Transformer rewrites import specifiers according to a schema
type Transformer struct {
	extractor imports.Extractor
}

// Option for the transformer
type Option func(*Transformer)

// WithExtractor overrides the import syntax recognized by the transformer (defaults to ES modules)
func WithExtractor(e imports.Extractor) Option {
	return func(t *Transformer) {
		t.extractor = e
	}
}

// New transformer
func New(opts ...Option) *Transformer {
	t := &Transformer{extractor: imports.ESModules()}
	for _, apply := range opts {
		apply(t)
	}
	return t
}

// Transform the content of the file at path p.
//
// Every import specifier which resolves to a file known to the schema is replaced by
// its versioned form. Other specifiers are left untouched, and so are imports of the
// entry module, which is only served under its own path. The input is not modified.
func (t *Transformer) Transform(p string, content []byte, schema model.Schema, entry string) []byte {
	found := t.extractor.Imports(content)
	if len(found) == 0 {
		return content
	}

	var buf bytes.Buffer
	buf.Grow(len(content) + 8*len(found))
	last := 0
	for _, imp := range found {
		target, ok := imports.Resolve(p, imp.Specifier)
		if !ok || target == entry {
			continue
		}
		dep, known := schema[target]
		if !known {
			continue
		}
		buf.Write(content[last:imp.Start])
		buf.WriteString(model.VersionedPath(imp.Specifier, dep.Version))
		last = imp.End
	}
	if last == 0 {
		return content
	}
	buf.Write(content[last:])
	return buf.Bytes()
}
