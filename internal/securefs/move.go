package securefs

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
)

// MoveMethod reports how Move relocated a file.
type MoveMethod string

const (
	// MoveLinked means the file was hard linked to its new name and the old name removed.
	MoveLinked MoveMethod = "link"
	// MoveCopied means the file was copied, verified and the source removed.
	MoveCopied MoveMethod = "copy"
	// MoveResumed means an interrupted earlier move was completed.
	MoveResumed MoveMethod = "resumed"
)

// partialSuffix marks in-flight copies. They are hidden files so catalog
// walks never see them.
const partialSuffix = ".partial"

// Move relocates src to dst inside the sandbox without ever replacing an
// existing dst. Parent directories of dst must already exist.
//
// On a single filesystem the move is a hard link followed by an unlink of
// src, so dst appears atomically with its full contents. When linking is not
// possible (different devices, or a filesystem without hard links) the file is
// copied to a hidden temporary name next to dst, synced, re-read and checked
// against the source size and SHA-256, then published under dst and only then
// is src removed.
//
// If a previous Move was interrupted after dst was created but before src was
// removed, Move finishes the job: either both names refer to the same file, or
// dst is a published copy with the size and SHA-256 of src.
func (sfs *SecureFS) Move(src, dst string) (MoveMethod, error) {
	srcPath, err := sfs.ValidateRelativePath(src)
	if err != nil {
		return "", err
	}
	dstPath, err := sfs.ValidateRelativePath(dst)
	if err != nil {
		return "", err
	}

	srcInfo, err := sfs.isRegularFile(src)
	if err != nil {
		return "", err
	}

	err = sfs.link(srcPath, dstPath)
	switch {
	case err == nil:
		if err := sfs.root.Remove(srcPath); err != nil {
			return "", fmt.Errorf("remove source after link: %w", err)
		}
		sfs.syncDir(path.Dir(dst))
		return MoveLinked, nil

	case errors.Is(err, fs.ErrExist):
		dstInfo, statErr := sfs.root.Lstat(dstPath)
		if statErr == nil && os.SameFile(srcInfo, dstInfo) {
			if strings.EqualFold(srcPath, dstPath) {
				// Case-only rename on a case-insensitive filesystem: both
				// names are one directory entry, so removing src would lose it.
				if err := sfs.root.Rename(srcPath, dstPath); err != nil {
					return "", fmt.Errorf("case-only rename %s: %w", src, err)
				}
				return MoveLinked, nil
			}
			if err := sfs.root.Remove(srcPath); err != nil {
				return "", fmt.Errorf("remove source of interrupted move: %w", err)
			}
			GetLogger().Info("completed interrupted move",
				logger.String("src", src),
				logger.String("dst", dst))
			return MoveResumed, nil
		}
		if statErr == nil && sfs.sameContent(src, dst, srcInfo, dstInfo) {
			return sfs.resumeCopy(src, dst, srcPath)
		}
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, dst)

	case errors.Is(err, fs.ErrNotExist):
		return "", err

	case linkUnsupported(err):
		GetLogger().Debug("hard link unavailable, copying",
			logger.String("src", src),
			logger.String("dst", dst),
			logger.Error(err))
		if dstInfo, statErr := sfs.root.Lstat(dstPath); statErr == nil && sfs.sameContent(src, dst, srcInfo, dstInfo) {
			return sfs.resumeCopy(src, dst, srcPath)
		}
		if err := sfs.copyVerified(src, dst, srcInfo); err != nil {
			return "", err
		}
		if err := sfs.root.Remove(srcPath); err != nil {
			return "", fmt.Errorf("remove source after verified copy: %w", err)
		}
		return MoveCopied, nil

	default:
		return "", fmt.Errorf("link %s to %s: %w", src, dst, err)
	}
}

// resumeCopy removes src once dst is known to hold a verified copy of it.
func (sfs *SecureFS) resumeCopy(src, dst, srcPath string) (MoveMethod, error) {
	if err := sfs.root.Remove(srcPath); err != nil {
		return "", fmt.Errorf("remove source of interrupted copy: %w", err)
	}
	GetLogger().Info("completed interrupted copy",
		logger.String("src", src),
		logger.String("dst", dst))
	return MoveResumed, nil
}

// copyVerified copies src to a temporary sibling of dst, verifies it and
// publishes it as dst without replacing an existing file.
func (sfs *SecureFS) copyVerified(src, dst string, srcInfo fs.FileInfo) error {
	start := time.Now()
	tmp := path.Join(path.Dir(dst), "."+path.Base(dst)+partialSuffix)

	srcSum, written, err := sfs.copyToTemp(src, tmp, srcInfo.Mode().Perm())
	if err != nil {
		_ = sfs.Remove(tmp)
		return err
	}

	if written != srcInfo.Size() {
		_ = sfs.Remove(tmp)
		return errors.New(fmt.Errorf("%w: source %d bytes, copied %d bytes", ErrCopyVerification, srcInfo.Size(), written)).
			Component("securefs").
			Category(errors.CategoryFileIO).
			FileContext(dst, written).
			Build()
	}

	dstSum, err := sfs.hashFile(tmp)
	if err != nil {
		_ = sfs.Remove(tmp)
		return err
	}
	if !bytes.Equal(srcSum, dstSum) {
		_ = sfs.Remove(tmp)
		return errors.New(fmt.Errorf("%w: checksum mismatch for %s", ErrCopyVerification, dst)).
			Component("securefs").
			Category(errors.CategoryFileIO).
			FileContext(dst, written).
			Build()
	}

	if err := sfs.publish(tmp, dst); err != nil {
		_ = sfs.Remove(tmp)
		return err
	}
	sfs.syncDir(path.Dir(dst))

	GetLogger().Debug("verified copy complete",
		logger.String("dst", dst),
		logger.Int64("bytes", written),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// copyToTemp writes src into a freshly created tmp, fsyncs it and returns the
// source checksum and byte count. A stale tmp from an earlier crash is replaced.
func (sfs *SecureFS) copyToTemp(src, tmp string, perm os.FileMode) ([]byte, int64, error) {
	in, err := sfs.Open(src)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = in.Close() }()

	out, err := sfs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if errors.Is(err, fs.ErrExist) {
		GetLogger().Warn("removing stale partial copy", logger.String("path", tmp))
		if rmErr := sfs.Remove(tmp); rmErr != nil {
			return nil, 0, fmt.Errorf("remove stale partial copy: %w", rmErr)
		}
		out, err = sfs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("create partial copy: %w", err)
	}

	hasher := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, hasher))
	if err != nil {
		_ = out.Close()
		return nil, 0, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return nil, 0, fmt.Errorf("sync partial copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, 0, fmt.Errorf("close partial copy: %w", err)
	}
	return hasher.Sum(nil), written, nil
}

// sameContent reports whether dst is a regular file with the size and
// SHA-256 of src.
func (sfs *SecureFS) sameContent(src, dst string, srcInfo, dstInfo fs.FileInfo) bool {
	if !dstInfo.Mode().IsRegular() || dstInfo.Size() != srcInfo.Size() {
		return false
	}
	srcSum, err := sfs.hashFile(src)
	if err != nil {
		return false
	}
	dstSum, err := sfs.hashFile(dst)
	if err != nil {
		return false
	}
	return bytes.Equal(srcSum, dstSum)
}

func (sfs *SecureFS) hashFile(relPath string) ([]byte, error) {
	f, err := sfs.Open(relPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash %s: %w", relPath, err)
	}
	return h.Sum(nil), nil
}

// publish gives the verified temporary file its final name. tmp and dst share
// a directory, so linking normally succeeds; filesystems without hard links
// fall back to a rename guarded by an existence check.
func (sfs *SecureFS) publish(tmp, dst string) error {
	tmpPath, _ := sfs.ValidateRelativePath(tmp)
	dstPath, _ := sfs.ValidateRelativePath(dst)

	err := sfs.root.Link(tmpPath, dstPath)
	switch {
	case err == nil:
		return sfs.root.Remove(tmpPath)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	case linkUnsupported(err):
		exists, statErr := sfs.Exists(dst)
		if statErr != nil {
			return statErr
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
		return sfs.root.Rename(tmpPath, dstPath)
	default:
		return fmt.Errorf("publish %s: %w", dst, err)
	}
}

// syncDir flushes directory metadata so a completed move survives a crash.
// Failures are logged only; some platforms cannot fsync directories.
func (sfs *SecureFS) syncDir(relDir string) {
	d, err := sfs.Open(relDir)
	if err != nil {
		return
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		GetLogger().Trace("directory sync failed", logger.String("dir", relDir), logger.Error(err))
	}
}
