package formats

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

func mailSchema() *core.Schema {
	return &core.Schema{Name: "outlook", Fields: []core.Field{
		{Name: "(sub)folder", Type: core.FieldTypeString, Nullable: true},
		{Name: "subject", Type: core.FieldTypeString, Nullable: true},
		{Name: "size", Type: core.FieldTypeInt, Nullable: true},
		{Name: "Inbox", Type: core.FieldTypeBool},
		{Name: "_nebula_downloaded_at_utc", Type: core.FieldTypeTimestamp, Nullable: true},
	}}
}

func mailRows() []map[string]interface{} {
	subject := "weekly, report"
	return []map[string]interface{}{
		{"(sub)folder": "Inbox", "subject": &subject, "size": 12, "Inbox": true, "_nebula_downloaded_at_utc": received},
		{"(sub)folder": "Sent Items", "subject": nil, "size": int64(3), "Inbox": false, "_nebula_downloaded_at_utc": received},
	}
}

func writeAll(t *testing.T, format Format, schema *core.Schema, opts Options) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewRowWriter(&buf, format, schema, opts)
	require.NoError(t, err)
	for _, row := range mailRows() {
		require.NoError(t, w.WriteRow(row))
	}
	assert.EqualValues(t, 2, w.Rows())
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSONL")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)
	assert.Equal(t, ".json", f.Extension())
	assert.Equal(t, "text/csv", CSV.ContentType())

	_, err = ParseFormat("orc")
	assert.Error(t, err)
}

func TestCSVWriter(t *testing.T) {
	data := writeAll(t, CSV, mailSchema(), DefaultOptions())

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"(sub)folder", "subject", "size", "Inbox", "_nebula_downloaded_at_utc"}, records[0])
	assert.Equal(t, []string{"Inbox", "weekly, report", "12", "true", "2024-05-01T08:30:00Z"}, records[1])
	assert.Equal(t, "", records[2][1])
}

func TestCSVWriterDelimiterAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Delimiter = '\t'
	w, err := NewRowWriter(&buf, CSV, mailSchema(), opts)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "(sub)folder\tsubject\tsize\tInbox\t_nebula_downloaded_at_utc\n", buf.String())
}

func TestJSONLines(t *testing.T) {
	data := writeAll(t, JSON, mailSchema(), DefaultOptions())

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"(sub)folder":"Inbox","subject":"weekly, report"`))

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Nil(t, row["subject"])
	assert.Equal(t, "2024-05-01T08:30:00Z", row["_nebula_downloaded_at_utc"])
}

func TestJSONArray(t *testing.T) {
	opts := DefaultOptions()
	opts.JSONArray = true
	data := writeAll(t, JSON, nil, opts)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, float64(3), rows[1]["size"])

	var buf bytes.Buffer
	w, err := NewRowWriter(&buf, JSON, nil, opts)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "[]\n", buf.String())
}

func TestParquetWriter(t *testing.T) {
	opts := DefaultOptions()
	opts.RowGroupSize = 1
	data := writeAll(t, Parquet, mailSchema(), opts)

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer tbl.Release()

	assert.EqualValues(t, 2, tbl.NumRows())
	assert.EqualValues(t, 5, tbl.NumCols())
	assert.Equal(t, "(sub)folder", tbl.Schema().Field(0).Name)
}

func TestParquetRequiresSchema(t *testing.T) {
	_, err := NewRowWriter(&bytes.Buffer{}, Parquet, nil, DefaultOptions())
	assert.Error(t, err)

	_, err = NewRowWriter(&bytes.Buffer{}, Parquet, mailSchema(), Options{Codec: "brotli9000"})
	assert.Error(t, err)
}

func TestParquetRejectsBadValue(t *testing.T) {
	w, err := NewRowWriter(&bytes.Buffer{}, Parquet, mailSchema(), DefaultOptions())
	require.NoError(t, err)
	err = w.WriteRow(map[string]interface{}{"size": "twelve", "Inbox": true})
	assert.Error(t, err)
}

func TestAvroWriter(t *testing.T) {
	data := writeAll(t, Avro, mailSchema(), DefaultOptions())

	r, err := goavro.NewOCFReader(bytes.NewReader(data))
	require.NoError(t, err)

	var rows []map[string]interface{}
	for r.Scan() {
		datum, err := r.Read()
		require.NoError(t, err)
		rows = append(rows, datum.(map[string]interface{}))
	}
	require.Len(t, rows, 2)

	assert.Equal(t, map[string]interface{}{"string": "Inbox"}, rows[0]["_sub_folder"])
	assert.Equal(t, map[string]interface{}{"long": int64(12)}, rows[0]["size"])
	assert.Equal(t, true, rows[0]["Inbox"])
	assert.Equal(t, map[string]interface{}{"long": received.UnixMicro()}, rows[0]["_nebula_downloaded_at_utc"])
	assert.Nil(t, rows[1]["subject"])
}

func TestAvroNames(t *testing.T) {
	assert.Equal(t, "conversation_ID", AvroName("conversation ID"))
	assert.Equal(t, "_1st", AvroName("1st"))

	fields, _, err := avroSchema(&core.Schema{Fields: []core.Field{
		{Name: "a b", Type: core.FieldTypeString},
		{Name: "a-b", Type: core.FieldTypeString},
	}})
	require.NoError(t, err)
	assert.Equal(t, "a_b", fields[0].name)
	assert.Equal(t, "a_b_2", fields[1].name)
}

func TestFormatValue(t *testing.T) {
	s := "x"
	assert.Equal(t, "x", FormatValue(&s))
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "1.5", FormatValue(1.5))
	assert.Equal(t, `["a","b"]`, FormatValue([]string{"a", "b"}))
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"out/mail.csv":         CSV,
		"out/mail.csv.gz":      CSV,
		"mail.jsonl.zst":       JSON,
		"mail.parquet":         Parquet,
		"/tmp/x/contacts.avro": Avro,
	}
	for name, want := range tests {
		got, err := FormatFromPath(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := FormatFromPath("mail.txt.gz")
	assert.Error(t, err)
}
