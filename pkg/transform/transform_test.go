package transform

import (
	"testing"

	"github.com/oneconcern/smartes/pkg/imports"
	"github.com/oneconcern/smartes/pkg/model"
	"github.com/stretchr/testify/assert"
)

func testSchema() model.Schema {
	return model.Schema{
		"entry.js":       {Version: 4, Dependencies: []string{"lib.js", "src/util.js"}},
		"lib.js":         {Version: 1},
		"src/util.js":    {Version: 0, Dependencies: []string{"src/strings.js", "shared.js"}},
		"src/strings.js": {Version: 12},
		"shared.js":      {Version: 2},
	}
}

func TestTransform(t *testing.T) {
	for _, toPin := range []struct {
		name     string
		path     string
		content  string
		expected string
	}{
		{
			name:     "entry imports",
			path:     "entry.js",
			content:  "import lib from './lib.js';\nimport { u } from \"./src/util.js\";\nlib(u);\n",
			expected: "import lib from './lib-1.js';\nimport { u } from \"./src/util-0.js\";\nlib(u);\n",
		},
		{
			name:     "relative to a nested importer",
			path:     "src/util.js",
			content:  `import s from "./strings.js"; export * from "../shared.js";`,
			expected: `import s from "./strings-12.js"; export * from "../shared-2.js";`,
		},
		{
			name:     "unknown targets are left untouched",
			path:     "entry.js",
			content:  `import React from "react"; import gone from "./gone.js"; import lib from "./lib.js"`,
			expected: `import React from "react"; import gone from "./gone.js"; import lib from "./lib-1.js"`,
		},
		{
			name:     "no imports",
			path:     "lib.js",
			content:  "export default function lib() {}\n",
			expected: "export default function lib() {}\n",
		},
		{
			name:     "the entry is never versioned",
			path:     "src/util.js",
			content:  `import main from "../entry.js"; import s from "./strings.js"`,
			expected: `import main from "../entry.js"; import s from "./strings-12.js"`,
		},
		{
			name:     "same target imported twice",
			path:     "entry.js",
			content:  `import "./lib.js"; import x from './lib.js'`,
			expected: `import "./lib-1.js"; import x from './lib-1.js'`,
		},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			content := []byte(fixture.content)
			got := New().Transform(fixture.path, content, testSchema(), "entry.js")
			assert.Equal(t, fixture.expected, string(got))
			assert.Equal(t, fixture.content, string(content), "input must not be modified")
		})
	}
}

type noImports struct{}

func (noImports) Imports([]byte) []imports.Import { return nil }

func TestTransformWithExtractor(t *testing.T) {
	content := []byte(`import lib from "./lib.js"`)
	got := New(WithExtractor(noImports{})).Transform("entry.js", content, testSchema(), "entry.js")
	assert.Equal(t, string(content), string(got))
}
