//go:build windows

package securefs

import (
	"golang.org/x/sys/windows"

	"github.com/platelab/labeler/internal/errors"
)

// errCrossDevice is the error a hard link across volumes fails with.
var errCrossDevice error = windows.ERROR_NOT_SAME_DEVICE

// linkUnsupported reports whether a link error means the move has to copy.
// FAT and exFAT volumes answer CreateHardLink with ERROR_INVALID_FUNCTION.
func linkUnsupported(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE) ||
		errors.Is(err, windows.ERROR_NOT_SUPPORTED) ||
		errors.Is(err, windows.ERROR_INVALID_FUNCTION) ||
		errors.Is(err, windows.ERROR_TOO_MANY_LINKS)
}
