package engine

import (
	"context"

	"github.com/coffersTech/datalog-influx/internal/model"
)

// DefaultBatchSize is the number of sealed points written per bulk write.
const DefaultBatchSize = 1000

// FlushFunc writes a batch of points to the store. The slice is not reused
// after the call returns.
// This allows the engine package to not depend on any sink package directly.
type FlushFunc func(ctx context.Context, points []model.Point) error

// BatchWriter accumulates sealed points and flushes them in bulk once the
// batch reaches its size bound.
type BatchWriter struct {
	size    int
	points  []model.Point
	flushFn FlushFunc

	flushes int
	written int
}

// NewBatchWriter creates a BatchWriter flushing every size points. A
// non-positive size selects DefaultBatchSize.
func NewBatchWriter(size int, fn FlushFunc) *BatchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchWriter{
		size:    size,
		points:  make([]model.Point, 0, size),
		flushFn: fn,
	}
}

// Accumulate appends a sealed point, flushing when the batch is full.
func (b *BatchWriter) Accumulate(ctx context.Context, p model.Point) error {
	b.points = append(b.points, p)
	if len(b.points) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes the pending points, if any, and starts a new batch. A failed
// write leaves the batch untouched.
func (b *BatchWriter) Flush(ctx context.Context) error {
	if len(b.points) == 0 {
		return nil
	}
	if err := b.flushFn(ctx, b.points); err != nil {
		return err
	}
	b.flushes++
	b.written += len(b.points)
	b.points = make([]model.Point, 0, b.size)
	return nil
}

// Len returns the number of points waiting for the next flush.
func (b *BatchWriter) Len() int {
	return len(b.points)
}

// Flushes returns the number of successful bulk writes.
func (b *BatchWriter) Flushes() int {
	return b.flushes
}

// Written returns the number of points written so far.
func (b *BatchWriter) Written() int {
	return b.written
}
