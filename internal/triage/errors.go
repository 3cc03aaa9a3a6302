package triage

import (
	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/securefs"
)

// Sentinel errors. Operations wrap them in enhanced errors; match with errors.Is.
var (
	// ErrInvalidPath: the path escapes the media root or does not name an image.
	ErrInvalidPath = media.ErrInvalidPath

	// ErrEmptyLabel: the label has no [A-Z0-9] characters after sanitization.
	ErrEmptyLabel = media.ErrEmptyLabel

	// ErrDestinationExists: another file already occupies the destination.
	ErrDestinationExists = securefs.ErrDestinationExists

	// ErrSourceNotFound: the source is gone, typically moved by an earlier request.
	ErrSourceNotFound = media.ErrSourceNotFound

	// ErrInvalidTransition: the move is not allowed from the image's current category.
	ErrInvalidTransition = errors.NewStd("transition not allowed")
)

// categoryFor maps a triage failure to its error category.
func categoryFor(err error) errors.ErrorCategory {
	switch {
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrEmptyLabel),
		errors.Is(err, securefs.ErrPathTraversal), errors.Is(err, securefs.ErrInvalidPath):
		return errors.CategoryValidation
	case errors.Is(err, ErrSourceNotFound):
		return errors.CategoryNotFound
	case errors.Is(err, ErrDestinationExists), errors.Is(err, ErrInvalidTransition):
		return errors.CategoryConflict
	default:
		return errors.CategoryFileIO
	}
}
