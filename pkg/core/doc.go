// Copyright © 2018 One Concern

// Package core serves the files of a git repository with versioned imports.
//
// For a requested reference, the service replays the history of the reference oldest first.
// Each revision which schema is not cached yet gets its schema computed from the schema of
// the revision before it, then persisted. The schema of the newest revision decides which
// path is served and how imports are rewritten.
package core
