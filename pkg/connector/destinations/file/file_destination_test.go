package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() *frame.Frame {
	f := frame.New("mail", "mailbox", "subject", "size")
	f.Append(frame.Row{"mailbox": "ops@example.com", "subject": "Weekly report", "size": 2048})
	f.Append(frame.Row{"mailbox": "ops@example.com", "subject": "Re: invoice", "size": 512})
	f.AddMetadata("Outlook", time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC))
	return f
}

func TestRegisteredFormats(t *testing.T) {
	for _, name := range []string{"csv", "json", "parquet", "avro"} {
		assert.True(t, registry.HasDestination(name), name)
	}
}

func TestWriteCSV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "mail.csv")
	cfg := config.NewBaseConfig("mail_csv", "csv")
	cfg.Properties["path"] = path

	dest, err := registry.CreateDestination("csv", cfg)
	require.NoError(t, err)
	require.NoError(t, dest.Initialize(ctx, cfg))
	defer dest.Close(ctx)

	f := sampleFrame()
	require.NoError(t, dest.CreateSchema(ctx, f.Schema()))
	require.NoError(t, dest.Write(ctx, f.Stream(ctx, 4)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "mailbox,subject,size,_nebula_source,_nebula_downloaded_at_utc", lines[0])
	assert.Equal(t, "ops@example.com,Weekly report,2048,Outlook,2024-05-02T10:30:00Z", lines[1])

	fd := dest.(*FileDestination)
	assert.Equal(t, int64(2), fd.RecordsWritten())
	assert.Equal(t, path, fd.Path())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be renamed")
}

func TestWriteParquet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mail.parquet")
	cfg := config.NewBaseConfig("mail_parquet", "parquet")
	cfg.Properties["path"] = path

	dest := NewFileDestination("mail_parquet", formats.Parquet)
	require.NoError(t, dest.Initialize(ctx, cfg))
	f := sampleFrame()
	require.NoError(t, dest.CreateSchema(ctx, f.Schema()))
	require.NoError(t, dest.Write(ctx, f.Stream(ctx, 4)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))
}

func TestInitializeErrors(t *testing.T) {
	ctx := context.Background()

	cfg := config.NewBaseConfig("mail_csv", "csv")
	err := NewFileDestination("mail_csv", formats.CSV).Initialize(ctx, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	existing := filepath.Join(t.TempDir(), "mail.csv")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))
	cfg.Properties["path"] = existing
	cfg.Properties["overwrite"] = "false"
	err = NewFileDestination("mail_csv", formats.CSV).Initialize(ctx, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	cfg.Properties["overwrite"] = "maybe"
	err = NewFileDestination("mail_csv", formats.CSV).Initialize(ctx, cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestWriteNilStream(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewBaseConfig("mail_json", "json")
	cfg.Properties["path"] = filepath.Join(t.TempDir(), "mail.json")

	dest := NewFileDestination("mail_json", formats.JSON)
	require.NoError(t, dest.Initialize(ctx, cfg))
	err := dest.Write(ctx, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
