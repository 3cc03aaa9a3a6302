//go:build unix

package securefs

import (
	"golang.org/x/sys/unix"

	"github.com/platelab/labeler/internal/errors"
)

// errCrossDevice is the error a hard link across filesystems fails with.
var errCrossDevice error = unix.EXDEV

// linkUnsupported reports whether a link error means the move has to copy.
func linkUnsupported(err error) bool {
	return errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EMLINK) ||
		errors.Is(err, unix.EPERM)
}
