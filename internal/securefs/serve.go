package securefs

import (
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
)

// mapOpenErrorToHTTP converts file open errors to appropriate HTTP errors
func mapOpenErrorToHTTP(err error, effectivePath string) *echo.HTTPError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("File not found: %s", effectivePath))
	case errors.Is(err, fs.ErrPermission):
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	case errors.Is(err, ErrPathTraversal) || errors.Is(err, ErrInvalidPath):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file path").SetInternal(err)
	case errors.Is(err, ErrNotRegularFile):
		return echo.NewHTTPError(http.StatusForbidden, "Not a regular file")
	default:
		// os.Root reports escapes via symlink as a generic path error
		GetLogger().Warn("unhandled error serving file",
			logger.String("path", effectivePath),
			logger.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file path").SetInternal(err)
	}
}

// getContentType determines the content type for a file, using extension-based detection
func getContentType(path string) string {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}

// ServeRelativeFile streams the regular file at relPath to the client.
// Range and conditional requests are handled by http.ServeContent.
func (sfs *SecureFS) ServeRelativeFile(c echo.Context, relPath string) error {
	f, err := sfs.openRegular(relPath)
	if err != nil {
		return mapOpenErrorToHTTP(err, relPath)
	}
	defer func() {
		if err := f.Close(); err != nil {
			GetLogger().Warn("Failed to close file", logger.Error(err))
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get file info").SetInternal(err)
	}

	if c.Response().Header().Get(echo.HeaderContentType) == "" {
		c.Response().Header().Set(echo.HeaderContentType, getContentType(relPath))
	}

	http.ServeContent(c.Response(), c.Request(), filepath.Base(relPath), stat.ModTime(), f)
	return nil
}

// openRegular opens relPath and fails unless the opened file is a regular file.
func (sfs *SecureFS) openRegular(relPath string) (*os.File, error) {
	f, err := sfs.Open(relPath)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !stat.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, relPath)
	}
	return f, nil
}
