package frame

import (
	"context"
	"sort"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
)

// Stream publishes the frame as pooled records from a single goroutine.
// Both channels are closed once every row has been sent or ctx is done.
func (f *Frame) Stream(ctx context.Context, bufferSize int) *core.RecordStream {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	records := make(chan *pool.Record, bufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		for _, row := range f.Rows {
			r := pool.NewRecordFromPool(f.Name)
			r.Metadata.Table = f.Name
			for _, c := range f.Columns {
				r.SetData(c, row[c])
			}
			select {
			case records <- r:
			case <-ctx.Done():
				r.Release()
				errs <- ctx.Err()
				return
			}
		}
	}()

	return &core.RecordStream{Records: records, Errors: errs}
}

// Collect drains a record stream into a frame, releasing every record. With
// a schema the column order follows it; otherwise columns are added as they
// are first seen, sorted within each record. The first stream error is returned.
func Collect(ctx context.Context, name string, schema *core.Schema, stream *core.RecordStream) (*Frame, error) {
	f := New(name, schema.FieldNames()...)

	records := stream.Records
	errs := stream.Errors
	var firstErr error

	for records != nil || errs != nil {
		select {
		case r, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			row := make(Row, len(r.Data))
			keys := make([]string, 0, len(r.Data))
			for k, v := range r.Data {
				row[k] = v
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				f.AddColumn(k)
			}
			f.Rows = append(f.Rows, row)
			r.Release()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
		case <-ctx.Done():
			return f, ctx.Err()
		}
	}
	return f, firstErr
}
