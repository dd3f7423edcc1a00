package model

import (
	"fmt"
	"testing"

	"github.com/oneconcern/smartes/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type versionedPathFixture struct {
	name     string
	real     string
	version  uint64
	expected string
}

func versionedPathTestCases() []versionedPathFixture {
	return []versionedPathFixture{
		{name: "simple module", real: "lib.js", version: 1, expected: "lib-1.js"},
		{name: "nested module", real: "src/util/strings.js", version: 12, expected: "src/util/strings-12.js"},
		{name: "no extension", real: "Makefile", version: 0, expected: "Makefile-0"},
		{name: "multiple dots", real: "app.test.js", version: 3, expected: "app.test-3.js"},
		{name: "dotted directory", real: "v1.2/mod", version: 4, expected: "v1.2/mod-4"},
		{name: "hyphenated basename", real: "my-lib.js", version: 2, expected: "my-lib-2.js"},
		{name: "basename ending with digits", real: "jquery-3.js", version: 0, expected: "jquery-3-0.js"},
		{name: "relative specifier", real: "./lib.js", version: 7, expected: "./lib-7.js"},
		{name: "parent specifier", real: "../shared/x.mjs", version: 1, expected: "../shared/x-1.mjs"},
		{name: "large version", real: "a.css", version: 18446744073709551615, expected: "a-18446744073709551615.css"},
	}
}

func TestVersionedPath(t *testing.T) {
	for _, toPin := range versionedPathTestCases() {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			wire := VersionedPath(fixture.real, fixture.version)
			assert.Equal(t, fixture.expected, wire)

			real, version, err := ParseVersionedPath(wire)
			require.NoError(t, err)
			assert.Equal(t, fixture.real, real)
			assert.Equal(t, fixture.version, version)
		})
	}
}

func TestVersionedPathRoundTrip(t *testing.T) {
	bases := []string{"a", "a.js", "a-b.js", "a-1.js", "dir-2/a.min.js", "x/y/z.tar.gz", "-.js", "a-"}
	for _, base := range bases {
		for _, version := range []uint64{0, 1, 9, 10, 101, 4096} {
			wire := VersionedPath(base, version)
			real, v, err := ParseVersionedPath(wire)
			require.NoErrorf(t, err, "decoding %q", wire)
			assert.Equalf(t, base, real, "decoding %q", wire)
			assert.Equalf(t, version, v, "decoding %q", wire)
		}
	}
}

func TestParseVersionedPathRejects(t *testing.T) {
	for _, wire := range []string{
		"lib.js",
		"entry.js",
		"lib-.js",
		"lib-a1.js",
		"lib-01.js",
		"lib-1.test.js",
		"v-1/lib.js",
		"lib-1x",
		"",
		"lib-99999999999999999999.js",
	} {
		wire := wire
		t.Run(fmt.Sprintf("%q", wire), func(t *testing.T) {
			_, _, err := ParseVersionedPath(wire)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotVersioned))
		})
	}
}
