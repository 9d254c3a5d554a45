package engine

import (
	"context"

	"github.com/coffersTech/datalog-influx/internal/model"
)

// PointSink receives sealed points.
type PointSink interface {
	Accumulate(ctx context.Context, p model.Point) error
}

// pendingPoint is the single open point. index maps field names to their
// position in fields so repeated names overwrite in place.
type pendingPoint struct {
	time   int64
	fields []model.Field
	index  map[string]int
}

func (pp *pendingPoint) set(name string, v model.Value) {
	if i, ok := pp.index[name]; ok {
		pp.fields[i].Value = v
		return
	}
	pp.index[name] = len(pp.fields)
	pp.fields = append(pp.fields, model.Field{Name: name, Value: v})
}

// Coalescer merges the values of consecutive records that share a timestamp
// into one point.
//
// A record's values are attached to the open point, and the point is sealed
// as soon as the record's timestamp differs from the last sealed timestamp.
// So the first record at a new timestamp is sealed on its own, and later
// records at that same timestamp gather on a fresh point until the timestamp
// moves on. An open point whose timestamp no longer matches the incoming
// record is sealed before the record is attached.
type Coalescer struct {
	measurement string
	sink        PointSink

	open       *pendingPoint
	lastSealed int64
	hasSealed  bool
}

// NewCoalescer creates a Coalescer emitting points for measurement into sink.
func NewCoalescer(measurement string, sink PointSink) *Coalescer {
	return &Coalescer{measurement: measurement, sink: sink}
}

// Add attaches the values of one record at time ms. Empty values are ignored.
func (c *Coalescer) Add(ctx context.Context, ms int64, values []DecodedValue) error {
	if len(values) == 0 {
		return nil
	}
	if c.open != nil && c.open.time != ms {
		if err := c.seal(ctx); err != nil {
			return err
		}
	}
	if c.open == nil {
		c.open = &pendingPoint{
			time:   ms,
			fields: make([]model.Field, 0, len(values)),
			index:  make(map[string]int, len(values)),
		}
	}
	for _, v := range values {
		c.open.set(v.Field, v.Value)
	}
	if !c.hasSealed || ms != c.lastSealed {
		return c.seal(ctx)
	}
	return nil
}

// Pending reports whether a point is open.
func (c *Coalescer) Pending() bool {
	return c.open != nil
}

// Close seals the open point, if any, regardless of its timestamp.
func (c *Coalescer) Close(ctx context.Context) error {
	if c.open == nil {
		return nil
	}
	return c.seal(ctx)
}

func (c *Coalescer) seal(ctx context.Context) error {
	pp := c.open
	c.open = nil
	c.lastSealed = pp.time
	c.hasSealed = true
	return c.sink.Accumulate(ctx, model.Point{
		Measurement: c.measurement,
		Time:        pp.time,
		Fields:      pp.fields,
	})
}
