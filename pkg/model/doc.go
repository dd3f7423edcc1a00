// Package model describes the base objects manipulated by smartes.
//
// The object model for smartes is composed of:
//
//  Revisions:
//    An immutable commit of the served git repository. A git reference (branch, tag, hash)
//    resolves to an ordered list of revisions, oldest first.
//
//  Schemas:
//    For a given revision, the set of files reachable from the entry module, each with
//    a version number and the list of files it imports.
//
//  Versioned paths:
//    The public URL form of a non-entry file, "basename-{version}.ext".
//    Versioned paths are immutable: the content served under a versioned path never changes.
package model
