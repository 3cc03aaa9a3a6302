// Package securefs provides a secure file system implementation
// with path validation and sandboxing.
package securefs

import (
	"github.com/platelab/labeler/internal/errors"
)

// Sentinel errors for the securefs package.
// These errors can be used with errors.Is to check for specific error conditions.
var (
	// ErrPathTraversal indicates an attempt to access a path outside the allowed directory
	// via relative path traversal (e.g., using "../" to escape the directory).
	ErrPathTraversal = errors.NewStd("security error: path attempts to traverse outside base directory")

	// ErrInvalidPath indicates an invalid path specification (e.g., absolute path when relative is required)
	ErrInvalidPath = errors.NewStd("security error: invalid path specification")

	// ErrNotRegularFile indicates an attempt to access something that is not a regular file
	ErrNotRegularFile = errors.NewStd("security error: not a regular file")

	// ErrDestinationExists is returned by Move when the target name is taken by another file.
	ErrDestinationExists = errors.NewStd("destination already exists")

	// ErrCopyVerification is returned when a copied file does not match its source.
	ErrCopyVerification = errors.NewStd("copy verification failed")
)
