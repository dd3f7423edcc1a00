package model

import "github.com/oneconcern/smartes/pkg/errors"

var (
	// ErrNotVersioned indicates that a path does not carry a well-formed version suffix
	ErrNotVersioned = errors.New("path is not versioned")
)
