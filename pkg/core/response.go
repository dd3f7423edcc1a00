package core

import "github.com/oneconcern/smartes/pkg/model"

// Response holds a served file
type Response struct {
	// Path of the file in the repository
	Path string

	// Revision the file was served from
	Revision model.Revision

	ContentType string

	// Body is the transformed content, gzip-encoded
	Body []byte

	// Immutable is true for versioned paths: their content never changes
	Immutable bool
}
