package pipeline

import (
	"github.com/benbjohnson/clock"
	"github.com/muxable/appframes/pkg/frame"
)

// Context is a context for a pipeline.
type Context struct {
	Format frame.Format
	Clock  clock.Clock
}

// NewContext creates a context running on the wall clock.
func NewContext(format frame.Format) Context {
	return Context{
		Format: format,
		Clock:  clock.New(),
	}
}
