package pipeline

import (
	"context"
	"strconv"
	"testing"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	frame   *frame.Frame
	readErr error
	tailErr error
}

func (s *fakeSource) Initialize(context.Context, *config.BaseConfig) error { return nil }
func (s *fakeSource) Discover(context.Context) (*core.Schema, error)       { return s.frame.Schema(), nil }
func (s *fakeSource) Close(context.Context) error                          { return nil }
func (s *fakeSource) Health(context.Context) error                         { return nil }
func (s *fakeSource) Metrics() map[string]interface{}                      { return nil }

func (s *fakeSource) Read(ctx context.Context) (*core.RecordStream, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.tailErr == nil {
		return s.frame.Stream(ctx, 2), nil
	}

	records := make(chan *pool.Record, len(s.frame.Rows))
	errs := make(chan error, 1)
	for _, row := range s.frame.Rows {
		records <- pool.NewRecord("fake", map[string]interface{}(row))
	}
	close(records)
	errs <- s.tailErr
	close(errs)
	return &core.RecordStream{Records: records, Errors: errs}, nil
}

type fakeDestination struct {
	schema   *core.Schema
	got      *frame.Frame
	writeErr error
}

func (d *fakeDestination) Initialize(context.Context, *config.BaseConfig) error { return nil }
func (d *fakeDestination) Close(context.Context) error                          { return nil }
func (d *fakeDestination) Health(context.Context) error                         { return nil }
func (d *fakeDestination) Metrics() map[string]interface{}                      { return nil }

func (d *fakeDestination) CreateSchema(_ context.Context, s *core.Schema) error {
	d.schema = s
	return nil
}

func (d *fakeDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	f, err := frame.Collect(ctx, "out", d.schema, stream)
	d.got = f
	if err != nil {
		return err
	}
	return d.writeErr
}

func mailFrame(n int) *frame.Frame {
	f := frame.New("mail", "mailbox", "size")
	for i := 0; i < n; i++ {
		f.Append(frame.Row{"mailbox": "box" + strconv.Itoa(i) + "@example.com", "size": i})
	}
	return f
}

func TestPipelineRun(t *testing.T) {
	dest := &fakeDestination{}
	p := NewSimplePipeline(&fakeSource{frame: mailFrame(5)}, dest, &Config{Name: "test", BufferSize: 1}, zaptest.NewLogger(t))

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.RecordsRead)
	assert.Equal(t, int64(5), res.RecordsWritten)
	assert.Equal(t, 5, dest.got.Len())
	assert.Equal(t, []string{"mailbox", "size"}, dest.schema.FieldNames())

	m := p.Metrics()
	assert.Equal(t, int64(5), m["records_written"])
	assert.Equal(t, 0, m["transform_count"])
}

func TestPipelineTransforms(t *testing.T) {
	dest := &fakeDestination{}
	p := NewSimplePipeline(&fakeSource{frame: mailFrame(4)}, dest, nil, zaptest.NewLogger(t))
	p.AddTransform(FilterTransform(func(r *pool.Record) bool { return r.Data["size"].(int)%2 == 0 }))
	p.AddTransform(FieldMapperTransform(map[string]string{"mailbox": "owner"}))
	p.AddTransform(TypeConverterTransform("size", func(v interface{}) (interface{}, error) {
		return strconv.Itoa(v.(int)), nil
	}))

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.RecordsRead)
	assert.Equal(t, int64(2), res.RecordsFiltered)
	assert.Equal(t, int64(2), res.RecordsWritten)
	assert.Equal(t, []interface{}{"box0@example.com", "box2@example.com"}, dest.got.Column("owner"))
	assert.Equal(t, []interface{}{"0", "2"}, dest.got.Column("size"))
}

func TestPipelineTransformError(t *testing.T) {
	dest := &fakeDestination{}
	p := NewSimplePipeline(&fakeSource{frame: mailFrame(3)}, dest, nil, zaptest.NewLogger(t))
	p.AddTransform(TypeConverterTransform("size", func(v interface{}) (interface{}, error) {
		if v.(int) == 1 {
			return nil, errors.New(errors.ErrorTypeData, "bad size")
		}
		return v, nil
	}))

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, int64(1), res.RecordsFailed)
	assert.Equal(t, int64(2), res.RecordsWritten)
}

func TestPipelineSourceErrors(t *testing.T) {
	t.Run("read fails", func(t *testing.T) {
		src := &fakeSource{frame: mailFrame(1), readErr: errors.New(errors.ErrorTypeAuthentication, "denied")}
		_, err := NewSimplePipeline(src, &fakeDestination{}, nil, zaptest.NewLogger(t)).Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
		assert.True(t, errors.HasType(err, errors.ErrorTypeAuthentication))
	})

	t.Run("stream error", func(t *testing.T) {
		src := &fakeSource{frame: mailFrame(2), tailErr: errors.New(errors.ErrorTypeRateLimit, "throttled")}
		_, err := NewSimplePipeline(src, &fakeDestination{}, nil, zaptest.NewLogger(t)).Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	})
}

func TestPipelineWriteError(t *testing.T) {
	dest := &fakeDestination{writeErr: errors.New(errors.ErrorTypeConnection, "bucket gone")}
	_, err := NewSimplePipeline(&fakeSource{frame: mailFrame(2)}, dest, nil, zaptest.NewLogger(t)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.True(t, errors.HasType(err, errors.ErrorTypeConnection))
}

func TestDropFieldsTransform(t *testing.T) {
	r := pool.NewRecord("x", map[string]interface{}{"a": 1, frame.SourceColumn: "Outlook"})
	out, err := DropFieldsTransform(frame.SourceColumn)(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1}, out.Data)
}

func TestSchemaRewriters(t *testing.T) {
	dest := &fakeDestination{}
	p := NewSimplePipeline(&fakeSource{frame: mailFrame(1)}, dest, nil, zaptest.NewLogger(t))
	p.AddTransform(FieldMapperTransform(map[string]string{"mailbox": "owner"}))
	p.AddSchemaRewriter(RenameSchemaFields(map[string]string{"mailbox": "owner"}))
	p.AddTransform(DropFieldsTransform("size"))
	p.AddSchemaRewriter(DropSchemaFields("size"))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, dest.schema.FieldNames())
	assert.Equal(t, []string{"owner"}, dest.got.Columns)
}
