package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{name: "nil context", ctx: nil, version: "unknown", buildDate: "unknown"},
		{name: "empty fields", ctx: &Context{}, version: "unknown", buildDate: "unknown"},
		{name: "populated", ctx: &Context{Version: "v1.0.0", BuildDate: "2026-03-01"}, version: "v1.0.0", buildDate: "2026-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
		})
	}
}

func TestCurrent(t *testing.T) {
	t.Parallel()
	c := Current()
	assert.NotNil(t, c)
	assert.NotEmpty(t, c.GetVersion())
}
