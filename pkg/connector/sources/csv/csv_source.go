// Package csv provides a source that streams rows of a local CSV file, so
// exported frames can be reloaded into another destination.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
	"go.uber.org/zap"
)

// CSVSource reads a file with a header row. Every value is read as a
// string; empty cells become nil.
//
// Properties:
//
//	path        file to read (required)
//	delimiter   field separator, "tab" or \t for tabs (",")
//	has_header  false names the columns column_1..column_n (true)
type CSVSource struct {
	*base.BaseConnector

	path       string
	delimiter  rune
	hasHeader  bool
	bufferSize int
	headers    []string
	rowsRead   int64
}

// NewCSVSource creates a CSV source.
func NewCSVSource(name string) *CSVSource {
	return &CSVSource{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeSource, "1.0.0"),
		delimiter:     ',',
		hasHeader:     true,
	}
}

// Initialize validates the properties and reads the header.
func (s *CSVSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	s.path = cfg.Property("path", "")
	if s.path == "" {
		return errors.New(errors.ErrorTypeConfig, "path property is required")
	}
	if d := cfg.Property("delimiter", ""); d != "" {
		if d == `\t` || d == "tab" {
			d = "\t"
		}
		s.delimiter = []rune(d)[0]
	}
	if v := cfg.Property("has_header", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid has_header property")
		}
		s.hasHeader = b
	}
	s.bufferSize = cfg.Performance.BufferSize
	if s.bufferSize <= 0 {
		s.bufferSize = 1000
	}

	f, reader, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()
	first, err := reader.Read()
	if err != nil && err != io.EOF {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV header")
	}
	s.headers = s.columnNames(first)

	s.SetHealthCheck(func(ctx context.Context) error {
		_, err := os.Stat(s.path)
		return err
	})
	s.UpdateHealth(true, map[string]interface{}{"path": s.path})
	s.GetLogger().Debug("CSV source initialized", zap.String("path", s.path), zap.Int("columns", len(s.headers)))
	return nil
}

func (s *CSVSource) open() (*os.File, *csv.Reader, error) {
	f, err := os.Open(s.path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open CSV file")
	}
	reader := csv.NewReader(f)
	reader.Comma = s.delimiter
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	return f, reader, nil
}

func (s *CSVSource) columnNames(first []string) []string {
	if s.hasHeader {
		return append([]string(nil), first...)
	}
	names := make([]string, len(first))
	for i := range first {
		names[i] = fmt.Sprintf("column_%d", i+1)
	}
	return names
}

// Discover returns the header as an all string, nullable schema.
func (s *CSVSource) Discover(ctx context.Context) (*core.Schema, error) {
	schema := &core.Schema{Name: s.Name(), CreatedAt: time.Now()}
	for _, h := range s.headers {
		schema.Fields = append(schema.Fields, core.Field{Name: h, Type: core.FieldTypeString, Nullable: true})
	}
	return schema, nil
}

// Read streams the data rows from a single goroutine.
func (s *CSVSource) Read(ctx context.Context) (*core.RecordStream, error) {
	f, reader, err := s.open()
	if err != nil {
		return nil, err
	}
	records := make(chan *pool.Record, s.bufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)
		defer f.Close()

		if s.hasHeader {
			if _, err := reader.Read(); err != nil {
				if err != io.EOF {
					errs <- errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV header")
				}
				return
			}
		}

		line := 0
		for {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			line++
			if err != nil {
				errs <- errors.Wrapf(err, errors.ErrorTypeData, "failed to read CSV row %d", line)
				return
			}

			r := pool.NewRecordFromPool(s.Name())
			for i, col := range s.headers {
				if i < len(row) && row[i] != "" {
					r.SetData(col, row[i])
				} else {
					r.SetData(col, nil)
				}
			}
			select {
			case records <- r:
				s.rowsRead++
			case <-ctx.Done():
				r.Release()
				errs <- ctx.Err()
				return
			}
		}
		s.RecordCounter("records_read", float64(s.rowsRead))
	}()

	return &core.RecordStream{Records: records, Errors: errs}, nil
}

// RowsRead returns the rows published by Read.
func (s *CSVSource) RowsRead() int64 {
	return s.rowsRead
}
