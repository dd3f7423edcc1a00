package model

import (
	"path"
	"regexp"
	"strconv"
)

var isVersionedStemRe *regexp.Regexp

func init() {
	// the greedy prefix makes the rightmost -{digits} group win
	isVersionedStemRe = regexp.MustCompile(`^(.*)-(0|[1-9][0-9]*)$`)
}

// splitBase splits a slash-separated path into its directory, the basename without
// its final extension, and that extension (including the dot).
func splitBase(p string) (dir, stem, ext string) {
	dir, base := path.Split(p)
	ext = path.Ext(base)
	return dir, base[:len(base)-len(ext)], ext
}

// VersionedPath yields the public path of a file at some version.
//
// The version is inserted before the final extension of the basename, e.g.
//
//  lib/util.js, 3    -> lib/util-3.js
//  Makefile, 0       -> Makefile-0
//  app.test.js, 1    -> app.test-1.js
//
// Relative import specifiers ("./lib.js") are encoded the same way.
func VersionedPath(realPath string, version uint64) string {
	dir, stem, ext := splitBase(realPath)
	return dir + stem + "-" + strconv.FormatUint(version, 10) + ext
}

// ParseVersionedPath is the inverse of VersionedPath.
//
// It returns ErrNotVersioned when the basename has no "-{digits}" group right before its final extension,
// or when the digits are not in canonical form (e.g. "lib-01.js").
func ParseVersionedPath(wirePath string) (string, uint64, error) {
	dir, stem, ext := splitBase(wirePath)
	m := isVersionedStemRe.FindStringSubmatch(stem)
	if m == nil {
		return "", 0, ErrNotVersioned.Wrapf("%q", wirePath)
	}
	version, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return "", 0, ErrNotVersioned.Wrap(err)
	}
	return dir + m[1] + ext, version, nil
}
