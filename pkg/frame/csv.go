package frame

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
)

// ReadCSV reads a headered CSV file into a frame of string values. Empty
// cells become nil.
func ReadCSV(r io.Reader, name string) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return New(name), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV header")
	}

	f := New(name, header...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV row")
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) && record[i] != "" {
				row[col] = record[i]
			} else {
				row[col] = nil
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path, name string) (*Frame, error) {
	file, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open CSV file")
	}
	defer file.Close()
	return ReadCSV(file, name)
}
