// Package catalog lists the images of a media root and counts them per category.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/observability/metrics"
	"github.com/platelab/labeler/internal/securefs"
)

// GetLogger returns the catalog module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("catalog")
}

// Scope selects which categories ListAll walks.
type Scope string

const (
	// ScopeAll lists every category.
	ScopeAll Scope = "all"
	// ScopeUnlabeled lists only images still waiting for a decision.
	ScopeUnlabeled Scope = "unlabeled"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeAll || s == ScopeUnlabeled
}

const listKey = "list"

// Counts holds the number of images per category.
type Counts map[media.Category]int

// Total returns the number of images across all categories.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Options configures a Catalog.
type Options struct {
	Scope Scope
	// CacheTTL keeps ListAll results for this long. Zero disables the cache.
	CacheTTL time.Duration
	Recorder metrics.Recorder
}

// Catalog enumerates images under a media root. The filesystem is the only
// source of truth; the optional listing cache is dropped by Invalidate.
type Catalog struct {
	fs       *securefs.SecureFS
	scope    Scope
	cache    *cache.Cache
	recorder metrics.Recorder

	// mu guards generation. Invalidate bumps it so a walk that started
	// before a move never stores its listing.
	mu         sync.Mutex
	generation uint64

	// walked runs between the walk and the cache store. Tests only.
	walked func()
}

// New creates a catalog over sfs.
func New(sfs *securefs.SecureFS, opts Options) (*Catalog, error) {
	if sfs == nil {
		return nil, errors.Newf("catalog requires a filesystem").
			Component("catalog").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if opts.Scope == "" {
		opts.Scope = ScopeAll
	}
	if !opts.Scope.Valid() {
		return nil, errors.Newf("unknown catalog scope %q", opts.Scope).
			Component("catalog").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Catalog{
		fs:       sfs,
		scope:    opts.Scope,
		recorder: metrics.OrNoOp(opts.Recorder),
	}
	if opts.CacheTTL > 0 {
		c.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return c, nil
}

func (c *Catalog) categories() []media.Category {
	if c.scope == ScopeUnlabeled {
		return []media.Category{media.Unlabeled}
	}
	return media.Categories
}

// ListAll returns the media-root-relative paths of every image in scope,
// sorted lexicographically. Non-image and hidden files are skipped. A missing
// category directory contributes nothing.
func (c *Catalog) ListAll(ctx context.Context) ([]string, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(listKey); ok {
			c.recorder.RecordOperation(metrics.OpCacheHit, metrics.StatusSuccess)
			return slices.Clone(cached.([]string)), nil
		}
		c.recorder.RecordOperation(metrics.OpCacheMiss, metrics.StatusSuccess)
	}

	generation := c.currentGeneration()
	start := time.Now()
	var paths []string
	for _, category := range c.categories() {
		err := c.walkCategory(ctx, category, func(rel string) {
			paths = append(paths, rel)
		})
		if err != nil {
			c.recorder.RecordOperation(metrics.OpListAll, metrics.StatusError)
			return nil, err
		}
	}
	slices.Sort(paths)

	c.recorder.RecordDuration(metrics.OpListAll, time.Since(start).Seconds())
	c.recorder.RecordOperation(metrics.OpListAll, metrics.StatusSuccess)

	if c.walked != nil {
		c.walked()
	}
	c.store(generation, paths)
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

// Counts enumerates every category at call time. Counts are never cached so
// they reflect edits made outside the labeler.
func (c *Catalog) Counts(ctx context.Context) (Counts, error) {
	counts := make(Counts, len(media.Categories))
	for _, category := range media.Categories {
		n := 0
		if err := c.walkCategory(ctx, category, func(string) { n++ }); err != nil {
			c.recorder.RecordOperation(metrics.OpCounts, metrics.StatusError)
			return nil, err
		}
		counts[category] = n
		if g, ok := c.recorder.(interface{ SetCategoryCount(string, int) }); ok {
			g.SetCategoryCount(string(category), n)
		}
	}
	c.recorder.RecordOperation(metrics.OpCounts, metrics.StatusSuccess)
	return counts, nil
}

// Invalidate drops the cached listing. The triage engine calls it after every
// successful move.
func (c *Catalog) Invalidate() {
	if c.cache == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Flush()
}

func (c *Catalog) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// store caches paths unless Invalidate ran after the walk began.
func (c *Catalog) store(generation uint64, paths []string) {
	if c.cache == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		GetLogger().Debug("discarding listing invalidated during walk")
		return
	}
	c.cache.Set(listKey, slices.Clone(paths), cache.DefaultExpiration)
}

func (c *Catalog) walkCategory(ctx context.Context, category media.Category, visit func(rel string)) error {
	err := c.fs.WalkFiles(string(category), func(rel string, _ fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if media.IsImage(rel) {
			visit(rel)
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		GetLogger().Trace("category directory missing", logger.String("category", string(category)))
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		c.recorder.RecordError(metrics.OpListAll, string(errors.CategoryFileIO))
		return errors.New(fmt.Errorf("walk %s: %w", category, err)).
			Component("catalog").
			Category(errors.CategoryFileIO).
			Context("category", string(category)).
			Build()
	}
}
