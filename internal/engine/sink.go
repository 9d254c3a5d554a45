package engine

import (
	"context"

	"github.com/coffersTech/datalog-influx/internal/model"
)

// Sink is a time-series store accepting bulk writes. WritePoints is
// synchronous and all-or-nothing per call.
type Sink interface {
	WritePoints(ctx context.Context, container string, points []model.Point) error
}

// SinkFlushFunc adapts a Sink writing into container to a FlushFunc.
func SinkFlushFunc(s Sink, container string) FlushFunc {
	return func(ctx context.Context, points []model.Point) error {
		return s.WritePoints(ctx, container, points)
	}
}
