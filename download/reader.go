package download

import (
	"context"
	"io"
)

// readerContext wraps a reader so a long io.Copy observes context
// cancellation between reads.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func (r *readerContext) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
