// Package pipeline moves records from a source connector to a destination
// connector.
//
// # Basic Usage
//
//	p := pipeline.NewSimplePipeline(source, destination, &pipeline.Config{Name: "mail_to_pg"}, logger)
//	p.AddTransform(pipeline.FieldMapperTransform(map[string]string{"subject": "title"}))
//	result, err := p.Run(ctx)
//
// Run discovers the source schema, hands it to the destination, then relays
// the source stream through the transforms into Destination.Write. Records
// are counted on the way through; the first source or transform error is
// forwarded to the destination and returned.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"github.com/ajitpratap0/nebula-connectors/pkg/observability"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
	"go.uber.org/zap"
)

// Transform modifies a record in flight. Returning a nil record drops it.
type Transform func(ctx context.Context, record *pool.Record) (*pool.Record, error)

// SchemaRewriter adjusts the discovered schema to match what the transforms
// emit, before it is handed to the destination.
type SchemaRewriter func(schema *core.Schema) *core.Schema

// Config controls a pipeline run.
type Config struct {
	Name       string // reported in logs and metrics
	BufferSize int    // capacity of the relay channel
}

// DefaultConfig returns the settings used when NewSimplePipeline gets nil.
func DefaultConfig() *Config {
	return &Config{Name: "pipeline", BufferSize: 1000}
}

// Result summarises one run.
type Result struct {
	RecordsRead     int64
	RecordsWritten  int64
	RecordsFiltered int64
	RecordsFailed   int64
	Duration        time.Duration
}

// SimplePipeline streams one source into one destination.
type SimplePipeline struct {
	name        string
	source      core.Source
	destination core.Destination
	transforms  []Transform
	rewriters   []SchemaRewriter
	bufferSize  int
	logger      *zap.Logger

	recordsRead     int64
	recordsWritten  int64
	recordsFiltered int64
	recordsFailed   int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  time.Time
	duration time.Duration
}

// NewSimplePipeline creates a pipeline. Call Run to start it.
func NewSimplePipeline(source core.Source, destination core.Destination, cfg *Config, logger *zap.Logger) *SimplePipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "pipeline"
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &SimplePipeline{
		name:        name,
		source:      source,
		destination: destination,
		bufferSize:  bufferSize,
		logger:      logger.With(zap.String("pipeline", name)),
	}
}

// AddTransform appends a transform; transforms run in the order added.
func (p *SimplePipeline) AddTransform(t Transform) {
	p.transforms = append(p.transforms, t)
}

// AddSchemaRewriter appends a schema rewriter; rewriters run in the order added.
func (p *SimplePipeline) AddSchemaRewriter(rw SchemaRewriter) {
	p.rewriters = append(p.rewriters, rw)
}

// Run executes the pipeline until the source is exhausted, an error occurs
// or Stop is called.
func (p *SimplePipeline) Run(ctx context.Context) (res Result, err error) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.started = time.Now()
	p.mu.Unlock()
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "pipeline", "run")
	timer := metrics.NewTimer("pipeline")
	defer func() {
		elapsed := timer.Stop()
		p.mu.Lock()
		p.duration = elapsed
		p.mu.Unlock()
		metrics.OperationLatency.WithLabelValues("pipeline", p.name).Observe(elapsed.Seconds())
		res = p.result(elapsed)
		span.SetAttribute("records_written", res.RecordsWritten)
		span.End(err)
	}()

	p.logger.Info("starting pipeline", zap.Int("transforms", len(p.transforms)))

	schema, err := p.source.Discover(ctx)
	if err != nil {
		return res, errors.Wrap(err, errors.ErrorTypeData, "failed to discover source schema")
	}
	for _, rw := range p.rewriters {
		schema = rw(schema)
	}
	if err := p.destination.CreateSchema(ctx, schema); err != nil {
		return res, errors.Wrap(err, errors.ErrorTypeData, "failed to prepare destination schema")
	}

	stream, err := p.source.Read(ctx)
	if err != nil {
		return res, errors.Wrap(err, errors.ErrorTypeConnection, "failed to start source read")
	}

	relayed, readErr := p.relay(ctx, stream)
	writeErr := p.destination.Write(ctx, relayed)
	cancel()
	srcErr := <-readErr
	if writeErr != nil && (srcErr == nil || errors.Is(srcErr, context.Canceled)) {
		p.record("failure")
		return res, errors.Wrap(writeErr, errors.ErrorTypeData, "destination write failed")
	}
	if srcErr != nil {
		p.record("failure")
		return res, srcErr
	}

	p.record("success")
	p.logger.Info("pipeline finished",
		zap.Int64("records_read", atomic.LoadInt64(&p.recordsRead)),
		zap.Int64("records_written", atomic.LoadInt64(&p.recordsWritten)),
		zap.Int64("records_filtered", atomic.LoadInt64(&p.recordsFiltered)),
		zap.Duration("duration", time.Since(p.started)))
	return res, nil
}

func (p *SimplePipeline) record(status string) {
	metrics.RecordsProcessed.WithLabelValues(p.name, "pipeline", status).
		Add(float64(atomic.LoadInt64(&p.recordsWritten)))
}

// relay forwards the source stream through the transforms. The returned
// channel yields the first source or transform error, or nil, once the
// source stream is exhausted.
func (p *SimplePipeline) relay(ctx context.Context, in *core.RecordStream) (*core.RecordStream, <-chan error) {
	out := make(chan *pool.Record, p.bufferSize)
	outErrs := make(chan error, 1)
	done := make(chan error, 1)

	go func() {
		var firstErr error
		fail := func(err error) {
			if firstErr == nil {
				firstErr = err
				outErrs <- err
			}
		}
		defer func() {
			close(out)
			close(outErrs)
			done <- firstErr
		}()

		records, errs := in.Records, in.Errors
		for records != nil || errs != nil {
			select {
			case r, ok := <-records:
				if !ok {
					records = nil
					continue
				}
				atomic.AddInt64(&p.recordsRead, 1)
				transformed, err := p.apply(ctx, r)
				if err != nil {
					atomic.AddInt64(&p.recordsFailed, 1)
					r.Release()
					fail(errors.Wrap(err, errors.ErrorTypeData, "transform failed"))
					continue
				}
				if transformed == nil {
					atomic.AddInt64(&p.recordsFiltered, 1)
					r.Release()
					continue
				}
				select {
				case out <- transformed:
					atomic.AddInt64(&p.recordsWritten, 1)
				case <-ctx.Done():
					transformed.Release()
					fail(ctx.Err())
					return
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				p.logger.Error("source error", zap.Error(err))
				fail(err)
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
		}
	}()

	return &core.RecordStream{Records: out, Errors: outErrs}, done
}

func (p *SimplePipeline) apply(ctx context.Context, r *pool.Record) (*pool.Record, error) {
	for _, t := range p.transforms {
		next, err := t(ctx, r)
		if err != nil || next == nil {
			return nil, err
		}
		r = next
	}
	return r, nil
}

// Stop cancels a running pipeline.
func (p *SimplePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.logger.Info("stopping pipeline")
		p.cancel()
	}
}

func (p *SimplePipeline) result(d time.Duration) Result {
	return Result{
		RecordsRead:     atomic.LoadInt64(&p.recordsRead),
		RecordsWritten:  atomic.LoadInt64(&p.recordsWritten),
		RecordsFiltered: atomic.LoadInt64(&p.recordsFiltered),
		RecordsFailed:   atomic.LoadInt64(&p.recordsFailed),
		Duration:        d,
	}
}

// Metrics returns the pipeline counters.
func (p *SimplePipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	d := p.duration
	if d == 0 && !p.started.IsZero() {
		d = time.Since(p.started)
	}
	p.mu.Unlock()

	res := p.result(d)
	throughput := 0.0
	if d > 0 {
		throughput = float64(res.RecordsWritten) / d.Seconds()
	}
	return map[string]interface{}{
		"records_read":     res.RecordsRead,
		"records_written":  res.RecordsWritten,
		"records_filtered": res.RecordsFiltered,
		"records_failed":   res.RecordsFailed,
		"duration":         d.String(),
		"throughput_rps":   throughput,
		"transform_count":  len(p.transforms),
	}
}
