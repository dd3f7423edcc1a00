// Package imports extracts the statically declared imports of a module.
//
// Extraction is syntactic: it finds import specifiers in the source text, it does not
// evaluate or resolve anything. Resolution of a specifier against the importing file
// is provided by Resolve.
package imports

import (
	"path"
	"regexp"
	"strings"
)

// Import is one import specifier found in a module.
//
// Start and End are the byte offsets of the specifier in the content, quotes excluded.
type Import struct {
	Specifier string
	Start     int
	End       int
}

// Extractor knows how to find import specifiers in some content.
//
// Implementations must be pure and return imports in the order of appearance.
type Extractor interface {
	Imports(content []byte) []Import
}

// Targets yields the list of specifiers found by an extractor
func Targets(e Extractor, content []byte) []string {
	found := e.Imports(content)
	targets := make([]string, 0, len(found))
	for _, imp := range found {
		targets = append(targets, imp.Specifier)
	}
	return targets
}

var esImportRe = regexp.MustCompile(
	`(?:^|[;}\s])(?:import|export)\s*(?:[\w$*{}\s,]*?\s*from\s*)?(["'])([^"'\r\n]+)["']`,
)

type esModules struct{}

// ESModules extracts the specifiers of static ECMAScript module declarations:
//
//  import x from "./a.js"
//  import { a, b as c } from './b.js'
//  import * as ns from "./c.js"
//  import "./side-effect.js"
//  export { x } from "./d.js"
//  export * from "./e.js"
//
// Dynamic import() expressions are not considered.
func ESModules() Extractor {
	return esModules{}
}

func (esModules) Imports(content []byte) []Import {
	matches := esImportRe.FindAllSubmatchIndex(content, -1)
	found := make([]Import, 0, len(matches))
	for _, m := range matches {
		// m[4:6] is the specifier group
		start, end := m[4], m[5]
		found = append(found, Import{
			Specifier: string(content[start:end]),
			Start:     start,
			End:       end,
		})
	}
	return found
}

// Resolve a relative import specifier against the path of the importing file.
//
// Only "./" and "../" specifiers are resolved: bare module names and absolute URLs
// do not designate a file in the repository. Specifiers escaping the repository root
// are not resolved either.
func Resolve(importer, specifier string) (string, bool) {
	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") {
		return "", false
	}
	resolved := path.Join(path.Dir(importer), specifier)
	if resolved == "." || resolved == ".." || strings.HasPrefix(resolved, "../") {
		return "", false
	}
	return resolved, true
}
