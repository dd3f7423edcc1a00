// Copyright © 2018 One Concern

// Package status declares error constants returned by the various
// services provided by smartes.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/core and the
// packages it orchestrates.
package status

import "github.com/oneconcern/smartes/pkg/errors"

var (
	// ErrInvalidReference indicates that a branch, tag or commit hash does not exist in the repository
	ErrInvalidReference = errors.New("invalid reference")

	// ErrNotFound indicates that the requested file is not served at this reference and path
	ErrNotFound = errors.New("not found")

	// ErrInternal indicates an unexpected failure, such as an unreadable object or an unwritable cache
	ErrInternal = errors.New("internal error")

	// ErrInterrupted indicates that a computation was abandoned because its caller went away
	ErrInterrupted = errors.New("interrupted")
)
