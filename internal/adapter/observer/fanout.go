// Package observer holds the sinks a committed step is reported to.
package observer

import (
	"context"

	"aitown/internal/app/ports"
)

// Fanout reports each step to every observer in order.
type Fanout []ports.StepObserver

func (f Fanout) StepCommitted(ctx context.Context, s ports.StepSummary) {
	for _, o := range f {
		if o != nil {
			o.StepCommitted(ctx, s)
		}
	}
}
