package securefs

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
)

// GetLogger returns the securefs package logger scoped to the securefs module.
// The logger is fetched from the global logger each time to ensure it uses
// the current centralized logger (which may be set after package init).
func GetLogger() logger.Logger {
	return logger.Global().Module("securefs")
}

// SecureFS provides filesystem operations confined to a base directory
// using os.Root for OS-level sandboxing.
//
// Every path argument is relative to the base directory and slash-separated.
// Traversal with "..", absolute paths and symlinks that resolve outside the
// base are rejected by the OS before any mutation happens.
type SecureFS struct {
	baseDir string
	root    *os.Root

	// link creates newname as a hard link to oldname without replacing an
	// existing newname. Replaced in tests to simulate cross-device moves.
	link func(oldname, newname string) error
}

// New opens a sandbox rooted at baseDir. The directory must already exist.
func New(baseDir string) (*SecureFS, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("media root %s: %w", absPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media root %s is not a directory", absPath)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem sandbox: %w", err)
	}

	sfs := &SecureFS{baseDir: absPath, root: root}
	sfs.link = root.Link
	return sfs, nil
}

// BaseDir returns the absolute base directory.
func (sfs *SecureFS) BaseDir() string {
	return sfs.baseDir
}

// Close releases the sandbox root.
func (sfs *SecureFS) Close() error {
	if sfs.root == nil {
		return nil
	}
	return sfs.root.Close()
}

// ValidateRelativePath validates a slash-separated path assumed to be relative
// to the base directory and returns it cleaned and in OS form.
func (sfs *SecureFS) ValidateRelativePath(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	cleaned := path.Clean(filepath.ToSlash(relPath))

	if path.IsAbs(cleaned) || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: path must be relative, got %q", ErrInvalidPath, relPath)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, relPath)
	}
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) && cleaned != "." {
		return "", fmt.Errorf("%w: %q is not a local path", ErrInvalidPath, relPath)
	}

	return filepath.FromSlash(cleaned), nil
}

// MkdirAll creates a directory and all necessary parents inside the sandbox.
func (sfs *SecureFS) MkdirAll(relPath string, perm os.FileMode) error {
	p, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return err
	}
	if p == "." {
		return nil
	}
	if err := sfs.root.MkdirAll(p, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", relPath, err)
	}
	return nil
}

// Open opens a file for reading.
func (sfs *SecureFS) Open(relPath string) (*os.File, error) {
	p, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.Open(p)
}

// OpenFile opens a file with the given flags.
func (sfs *SecureFS) OpenFile(relPath string, flag int, perm os.FileMode) (*os.File, error) {
	p, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.OpenFile(p, flag, perm)
}

// Stat returns file info, following symlinks inside the sandbox.
func (sfs *SecureFS) Stat(relPath string) (fs.FileInfo, error) {
	p, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.Stat(p)
}

// Lstat returns file info without following a final symlink.
func (sfs *SecureFS) Lstat(relPath string) (fs.FileInfo, error) {
	p, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.Lstat(p)
}

// Exists reports whether relPath names an existing entry.
func (sfs *SecureFS) Exists(relPath string) (bool, error) {
	_, err := sfs.Lstat(relPath)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Remove removes a file or empty directory.
func (sfs *SecureFS) Remove(relPath string) error {
	p, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return err
	}
	return sfs.root.Remove(p)
}

// WalkFiles calls fn for every regular file below relPath in lexical order.
// The path passed to fn is slash-separated and relative to the base directory.
// Symlinks and other special files are not reported. A missing relPath is
// reported as fs.ErrNotExist.
func (sfs *SecureFS) WalkFiles(relPath string, fn func(rel string, d fs.DirEntry) error) error {
	p, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return err
	}
	return fs.WalkDir(sfs.root.FS(), filepath.ToSlash(p), func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(name, d)
	})
}

// isRegularFile stats relPath and fails unless it is a regular file.
func (sfs *SecureFS) isRegularFile(relPath string) (fs.FileInfo, error) {
	info, err := sfs.Lstat(relPath)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, relPath)
	}
	return info, nil
}
