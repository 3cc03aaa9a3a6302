// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

import "runtime/debug"

// Set at link time:
//
//	go build -ldflags "-X github.com/platelab/labeler/internal/buildinfo.version=v1.2.0 -X github.com/platelab/labeler/internal/buildinfo.buildDate=2026-01-01"
var (
	version   string
	buildDate string
)

const unknown = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// Current returns the metadata linked into this binary. Without link flags
// the module version recorded by the Go toolchain is used when available.
func Current() *Context {
	c := &Context{Version: version, BuildDate: buildDate}
	if c.Version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			c.Version = info.Main.Version
		}
	}
	return c
}

// GetVersion returns the version or "unknown".
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown".
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}
