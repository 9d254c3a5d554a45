package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/coffersTech/datalog-influx/internal/datalog"
	"github.com/coffersTech/datalog-influx/internal/model"
)

// DefaultMeasurement is the series name points are written under.
const DefaultMeasurement = "robot"

// RecordSource is a forward-only cursor over log records.
type RecordSource interface {
	Next() bool
	Record() datalog.Record
	Err() error
}

// Options configures a Processor.
type Options struct {
	Measurement string       // defaults to DefaultMeasurement
	BatchSize   int          // defaults to DefaultBatchSize
	Logger      *slog.Logger // diagnostics; defaults to slog.Default()
	Trace       io.Writer    // one line per lifecycle record; nil discards
}

// Processor is the processing context of one ingestion run. It owns the
// entry registry, the time base, the open point, the batch and the set of
// types already reported as unsupported, and mutates them from a single
// loop.
type Processor struct {
	registry  *Registry
	timeBase  TimeBase
	decoder   Decoder
	coalescer *Coalescer
	batch     *BatchWriter

	warnedTypes map[string]struct{}

	logger *slog.Logger
	trace  io.Writer
	stats  Stats
}

// NewProcessor creates a Processor writing batches through flush.
func NewProcessor(flush FlushFunc, opts Options) *Processor {
	if opts.Measurement == "" {
		opts.Measurement = DefaultMeasurement
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Trace == nil {
		opts.Trace = io.Discard
	}

	p := &Processor{
		registry:    NewRegistry(),
		batch:       NewBatchWriter(opts.BatchSize, flush),
		warnedTypes: make(map[string]struct{}),
		logger:      opts.Logger,
		trace:       opts.Trace,
	}
	p.coalescer = NewCoalescer(opts.Measurement, countingSink{p})
	return p
}

// Run consumes src to the end and performs the final flush. Per-record
// problems are logged and skipped; a sink failure or a cancelled context
// stops the run.
func (p *Processor) Run(ctx context.Context, src RecordSource) error {
	for src.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Process(ctx, src.Record()); err != nil {
			return err
		}
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("reading records: %w", err)
	}
	return p.Finish(ctx)
}

// Process handles a single record. The only error it returns is a failed
// bulk write.
func (p *Processor) Process(ctx context.Context, rec datalog.Record) error {
	p.stats.Records++

	switch rec.Kind() {
	case datalog.KindStart:
		p.handleStart(rec)
	case datalog.KindFinish:
		p.handleFinish(rec)
	case datalog.KindSetMetadata:
		p.handleSetMetadata(rec)
	case datalog.KindControl:
		p.stats.Controls++
		p.logger.Warn("unrecognized control record", "timestamp", rec.Timestamp)
	default:
		return p.handleData(ctx, rec)
	}
	return nil
}

// Finish seals the open point and flushes whatever is left in the batch.
func (p *Processor) Finish(ctx context.Context) error {
	if err := p.coalescer.Close(ctx); err != nil {
		return err
	}
	return p.batch.Flush(ctx)
}

// Stats returns the counters accumulated so far.
func (p *Processor) Stats() Stats {
	s := p.stats
	s.Flushes = int64(p.batch.Flushes())
	return s
}

// Registry exposes the entry registry for inspection.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// TimeBase returns the current time base.
func (p *Processor) TimeBase() TimeBase {
	return p.timeBase
}

func (p *Processor) handleStart(rec datalog.Record) {
	data, err := rec.StartData()
	if err != nil {
		p.stats.InvalidRecords++
		p.logger.Warn("Start(INVALID)", "timestamp", rec.Timestamp, "error", err)
		return
	}
	p.stats.Starts++
	fmt.Fprintf(p.trace, "Start(%d, name='%s', type='%s', metadata='%s') [%s]\n",
		data.Entry, data.Name, data.Type, data.Metadata, formatMillis(rec.Timestamp))

	duplicate := p.registry.Start(EntryDescriptor{
		ID:       data.Entry,
		Name:     data.Name,
		Type:     ParseEntryType(data.Type),
		TypeName: data.Type,
		Metadata: data.Metadata,
	})
	if duplicate {
		p.stats.Duplicates++
		p.logger.Warn("duplicate entry ID, overriding", "entry", data.Entry, "name", data.Name)
	}
}

func (p *Processor) handleFinish(rec datalog.Record) {
	id, err := rec.FinishEntry()
	if err != nil {
		p.stats.InvalidRecords++
		p.logger.Warn("Finish(INVALID)", "timestamp", rec.Timestamp, "error", err)
		return
	}
	p.stats.Finishes++
	fmt.Fprintf(p.trace, "Finish(%d) [%s]\n", id, formatMillis(rec.Timestamp))

	if !p.registry.Finish(id) {
		p.stats.UnknownEntry++
		p.logger.Warn("entry ID not found", "record", "Finish", "entry", id)
	}
}

func (p *Processor) handleSetMetadata(rec datalog.Record) {
	data, err := rec.SetMetadataData()
	if err != nil {
		p.stats.InvalidRecords++
		p.logger.Warn("SetMetadata(INVALID)", "timestamp", rec.Timestamp, "error", err)
		return
	}
	p.stats.SetMetadata++
	fmt.Fprintf(p.trace, "SetMetadata(%d, '%s') [%s]\n", data.Entry, data.Metadata, formatMillis(rec.Timestamp))

	if !p.registry.SetMetadata(data.Entry, data.Metadata) {
		p.stats.UnknownEntry++
		p.logger.Warn("entry ID not found", "record", "SetMetadata", "entry", data.Entry)
	}
}

func (p *Processor) handleData(ctx context.Context, rec datalog.Record) error {
	p.stats.DataRecords++

	desc, ok := p.registry.Lookup(rec.Entry)
	if !ok {
		p.stats.UnknownEntry++
		p.logger.Warn("entry ID not found", "record", "Data", "entry", rec.Entry, "timestamp", rec.Timestamp)
		return nil
	}

	if desc.IsTimeEntry() {
		epochMicros, err := rec.Integer()
		if err != nil {
			p.stats.DecodeErrors++
			p.logger.Warn("invalid time entry record", "entry", desc.ID, "error", err)
			return nil
		}
		p.timeBase.Sync(epochMicros, rec.Timestamp)
		p.stats.TimeSyncs++
		return nil
	}

	values, err := p.decoder.Decode(desc, rec)
	switch {
	case errors.Is(err, ErrUnsupportedType):
		p.stats.Unsupported++
		if _, warned := p.warnedTypes[desc.TypeName]; !warned {
			p.warnedTypes[desc.TypeName] = struct{}{}
			p.logger.Warn("skipping unsupported type", "type", desc.TypeName, "entry", desc.Name)
		}
		return nil
	case err != nil:
		p.stats.DecodeErrors++
		p.logger.Warn("invalid data record", "entry", desc.ID, "name", desc.Name, "error", err)
		return nil
	}

	ms, ok := p.timeBase.Millis(rec.Timestamp)
	if !ok {
		p.stats.Skipped++
		return nil
	}
	p.stats.Values += int64(len(values))
	return p.coalescer.Add(ctx, ms, values)
}

// countingSink counts sealed points on their way into the batch.
type countingSink struct {
	p *Processor
}

func (s countingSink) Accumulate(ctx context.Context, pt model.Point) error {
	s.p.stats.Points++
	return s.p.batch.Accumulate(ctx, pt)
}

func formatMillis(micros int64) string {
	return strconv.FormatFloat(float64(micros)/1000, 'f', -1, 64)
}
