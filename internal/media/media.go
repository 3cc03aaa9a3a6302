// Package media defines the on-disk data model of a labeling media root:
// the four category subtrees, image records and their wire paths, and the
// rules for deriving and sanitizing plate labels.
package media

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/platelab/labeler/internal/errors"
)

// Category names one of the top-level subtrees of a media root.
type Category string

const (
	Unlabeled Category = "unlabeled"
	Valid     Category = "valid"
	Invalid   Category = "invalid"
	Skipped   Category = "skipped"
)

// Categories lists every category in display order.
var Categories = []Category{Unlabeled, Valid, Invalid, Skipped}

var (
	// ErrInvalidPath is returned for paths that escape the media root, are
	// empty, or do not name an image file.
	ErrInvalidPath = errors.NewStd("invalid path")

	// ErrEmptyLabel is returned when a label has no characters left after sanitization.
	ErrEmptyLabel = errors.NewStd("label is empty after sanitization")

	// ErrSourceNotFound is returned when a referenced image does not exist.
	ErrSourceNotFound = errors.NewStd("source image not found")
)

// ParseCategory returns the category named s.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// imageExtensions are the file types the labeler catalogs.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
}

// IsImage reports whether name has a supported image extension and is not a
// hidden file. Hidden names are reserved for in-flight copies and lock files.
func IsImage(name string) bool {
	base := path.Base(filepath.ToSlash(name))
	if base == "" || strings.HasPrefix(base, ".") {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(base))]
	return ok
}

// ImageRecord identifies one image under a media root.
type ImageRecord struct {
	Category Category `json:"category"`
	RelPath  string   `json:"rel_path"` // slash-separated, relative to the category root
	Label    string   `json:"label"`
}

// Path returns the media-root-relative wire form, e.g. "valid/Goa/ABC123.jpg".
func (r ImageRecord) Path() string {
	return path.Join(string(r.Category), r.RelPath)
}

// Dir returns the subdirectory of the image within its category, or "" at top level.
func (r ImageRecord) Dir() string {
	d := path.Dir(r.RelPath)
	if d == "." {
		return ""
	}
	return d
}

// Ext returns the original file extension including the dot.
func (r ImageRecord) Ext() string {
	return path.Ext(r.RelPath)
}

// Stem returns the filename without directory and extension.
func (r ImageRecord) Stem() string {
	base := path.Base(r.RelPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// WithCategory returns the record moved to category c, keeping its subdirectory and name.
func (r ImageRecord) WithCategory(c Category) ImageRecord {
	r.Category = c
	return r
}

// WithStem returns the record renamed to stem, keeping its subdirectory and extension.
func (r ImageRecord) WithStem(stem string) ImageRecord {
	r.RelPath = path.Join(r.Dir(), stem+r.Ext())
	r.Label = InferLabel(r.RelPath)
	return r
}

// ParsePath parses a media-root-relative image path. A path whose first
// segment is not a category name is taken as relative to the unlabeled
// subtree. The result is always strictly inside the media root.
func ParsePath(p string) (ImageRecord, error) {
	if p == "" || strings.ContainsRune(p, 0) {
		return ImageRecord{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	slashed := strings.ReplaceAll(p, `\`, "/")
	if path.IsAbs(slashed) || !filepath.IsLocal(filepath.FromSlash(slashed)) {
		return ImageRecord{}, fmt.Errorf("%w: %q escapes the media root", ErrInvalidPath, p)
	}
	cleaned := path.Clean(slashed)

	category := Unlabeled
	rel := cleaned
	if first, rest, found := strings.Cut(cleaned, "/"); found {
		if c, ok := ParseCategory(first); ok {
			category, rel = c, rest
		}
	} else if _, ok := ParseCategory(cleaned); ok {
		return ImageRecord{}, fmt.Errorf("%w: %q names a category, not an image", ErrInvalidPath, p)
	}

	if !IsImage(rel) {
		return ImageRecord{}, fmt.Errorf("%w: %q is not a supported image", ErrInvalidPath, p)
	}

	return ImageRecord{
		Category: category,
		RelPath:  rel,
		Label:    InferLabel(rel),
	}, nil
}

// Sanitize uppercases label and strips every character outside [A-Z0-9].
// It fails with ErrEmptyLabel when nothing remains.
func Sanitize(label string) (string, error) {
	s := clean(label)
	if s == "" {
		return "", ErrEmptyLabel
	}
	return s, nil
}

// InferLabel derives the display label from a file name: its stem,
// sanitized. It returns "" when the stem has no usable characters.
func InferLabel(name string) string {
	base := path.Base(filepath.ToSlash(name))
	return clean(strings.TrimSuffix(base, path.Ext(base)))
}

func clean(s string) string {
	// Casers carry state and are not shared between goroutines.
	up := cases.Upper(language.Und).String(s)
	var b strings.Builder
	b.Grow(len(up))
	for _, r := range up {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
