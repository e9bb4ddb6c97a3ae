package flows

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/outlook"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memFolder struct {
	name     string
	children []outlook.Folder
	messages []outlook.Message
}

func (f *memFolder) Name() string { return f.name }

func (f *memFolder) Folders(context.Context) ([]outlook.Folder, error) { return f.children, nil }

func (f *memFolder) Messages(_ context.Context, limit int) ([]outlook.Message, error) {
	if len(f.messages) > limit {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

type memAccount struct {
	roots map[string]*memFolder
}

func (a *memAccount) Authenticate(context.Context) error { return nil }
func (a *memAccount) IsAuthenticated() bool              { return true }

func (a *memAccount) Mailbox(name string) outlook.Folder {
	if root, ok := a.roots[name]; ok {
		return root
	}
	return &memFolder{name: name}
}

type memUploader struct {
	localPath string
	key       string
	body      []byte
}

func (u *memUploader) UploadFile(_ context.Context, localPath, key string) (string, error) {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	u.localPath, u.key, u.body = localPath, key, body
	return "mem://landing/" + key, nil
}

var received = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func mail(subject string) outlook.Message {
	ts := received.Format(time.RFC3339)
	id := "conv-" + subject
	return outlook.Message{
		Received: received,
		Subject:  &subject,
		API: outlook.APIMessage{
			From:             &outlook.Recipient{EmailAddress: outlook.EmailAddress{Address: "sender@example.com"}},
			ToRecipients:     []outlook.Recipient{{EmailAddress: outlook.EmailAddress{Address: "ops@example.com"}}},
			ConversationID:   &id,
			ReceivedDateTime: &ts,
		},
	}
}

func testAccount() *memAccount {
	inbox := &memFolder{name: "Inbox", messages: []outlook.Message{mail("Weekly report"), mail("Invoice")}}
	sent := &memFolder{name: "Sent Items", messages: []outlook.Message{mail("Re: Invoice")}}
	return &memAccount{roots: map[string]*memFolder{
		"ops@example.com": {name: "ops@example.com", children: []outlook.Folder{inbox}},
		"hr@example.com":  {name: "hr@example.com", children: []outlook.Folder{sent}},
	}}
}

func testRequest() outlook.ExtractRequest {
	return outlook.NewExtractRequest("", outlook.Window{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
	})
}

func testExtractor(opts ...outlook.Option) *outlook.Extractor {
	opts = append([]outlook.Option{
		outlook.WithRetries(1, 0),
		outlook.WithClock(func() time.Time { return received.Add(time.Hour) }),
	}, opts...)
	return outlook.NewExtractor(testAccount(), opts...)
}

func TestOutlookToStorageCSV(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	uploader := &memUploader{}
	path := filepath.Join(t.TempDir(), "out", "outlook.csv")

	flow, err := NewOutlookToStorage(OutlookToStorageConfig{
		Mailboxes: []string{"ops@example.com", "empty@example.com", "hr@example.com"},
		Request:   testRequest(),
		LocalPath: path,
		Validation: map[string]interface{}{
			"dataset_row_count": map[string]interface{}{"min": 1, "max": 10},
		},
	}, testExtractor(), WithUploader(uploader, "raw/outlook.csv"), WithFlowLogger(zap.New(core)))
	require.NoError(t, err)

	res, err := flow.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, []string{"ops@example.com", "hr@example.com"}, res.Extracted)
	assert.Equal(t, []string{"empty@example.com"}, res.Skipped)
	assert.Equal(t, path, res.LocalPath)
	assert.Equal(t, "mem://landing/raw/outlook.csv", res.Location)
	assert.Equal(t, 1, logs.FilterMessage("mailbox returned no rows, skipping").Len())

	written, err := frame.ReadCSVFile(path, "outlook")
	require.NoError(t, err)
	assert.Equal(t, append(append([]string(nil), outlook.Columns...), frame.SourceColumn, frame.DownloadedAtColumn), written.Columns)
	assert.Equal(t, []interface{}{"ops", "ops", "hr"}, written.Column(outlook.ColumnMailAddress))
	assert.Equal(t, []interface{}{"true", "true", "false"}, written.Column(outlook.ColumnInbox))
	assert.Equal(t, []interface{}{"Outlook", "Outlook", "Outlook"}, written.Column(frame.SourceColumn))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, uploader.body)
	assert.Equal(t, "raw/outlook.csv", uploader.key)
}

func TestOutlookToStorageParquet(t *testing.T) {
	uploader := &memUploader{}
	path := filepath.Join(t.TempDir(), "outlook.parquet")

	flow, err := NewOutlookToStorage(OutlookToStorageConfig{
		Mailboxes: []string{"ops@example.com"},
		Request:   testRequest(),
		LocalPath: path,
	}, testExtractor(), WithUploader(uploader, ""))
	require.NoError(t, err)

	res, err := flow.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, "outlook.parquet", uploader.key)
	assert.True(t, bytes.HasPrefix(uploader.body, []byte("PAR1")))
}

func TestOutlookToStorageAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outlook.csv")
	cfg := OutlookToStorageConfig{
		Mailboxes: []string{"ops@example.com"},
		Request:   testRequest(),
		LocalPath: path,
		IfExists:  "append",
	}

	for i, want := range []int{2, 4} {
		flow, err := NewOutlookToStorage(cfg, testExtractor())
		require.NoError(t, err)
		res, err := flow.Run(context.Background())
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, want, res.Rows)
	}

	written, err := frame.ReadCSVFile(path, "outlook")
	require.NoError(t, err)
	assert.Equal(t, 4, written.Len())
}

func TestOutlookToStorageValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outlook.csv")
	uploader := &memUploader{}
	flow, err := NewOutlookToStorage(OutlookToStorageConfig{
		Mailboxes:  []string{"ops@example.com"},
		Request:    testRequest(),
		LocalPath:  path,
		Validation: map[string]interface{}{"column_list_to_match": []string{"test", "wrong", "columns"}},
	}, testExtractor(), WithUploader(uploader, ""))
	require.NoError(t, err)

	_, err = flow.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.NoFileExists(t, path)
	assert.Empty(t, uploader.key)
}

func TestOutlookToStorageNothingExtracted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outlook.csv")

	t.Run("skip policy", func(t *testing.T) {
		flow, err := NewOutlookToStorage(OutlookToStorageConfig{
			Mailboxes: []string{"nobody@example.com"},
			Request:   testRequest(),
			LocalPath: path,
		}, testExtractor(outlook.WithEmptyPolicy(frame.EmptySkip)))
		require.NoError(t, err)

		res, err := flow.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"nobody@example.com"}, res.Skipped)
		assert.Empty(t, res.LocalPath)
		assert.NoFileExists(t, path)
	})

	t.Run("fail policy", func(t *testing.T) {
		flow, err := NewOutlookToStorage(OutlookToStorageConfig{
			Mailboxes: []string{"nobody@example.com"},
			Request:   testRequest(),
			LocalPath: path,
		}, testExtractor(outlook.WithEmptyPolicy(frame.EmptyFail)))
		require.NoError(t, err)

		_, err = flow.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.HasType(err, errors.ErrorTypeEmpty))
	})
}

func TestNewOutlookToStorageConfig(t *testing.T) {
	valid := OutlookToStorageConfig{Mailboxes: []string{"ops@example.com"}, LocalPath: "out.csv"}

	tests := []struct {
		name   string
		mutate func(*OutlookToStorageConfig)
	}{
		{"no mailboxes", func(c *OutlookToStorageConfig) { c.Mailboxes = nil }},
		{"no path", func(c *OutlookToStorageConfig) { c.LocalPath = "" }},
		{"json file", func(c *OutlookToStorageConfig) { c.LocalPath = "out.json" }},
		{"compressed csv", func(c *OutlookToStorageConfig) { c.LocalPath = "out.csv.gz" }},
		{"append parquet", func(c *OutlookToStorageConfig) { c.LocalPath = "out.parquet"; c.IfExists = "append" }},
		{"unknown if_exists", func(c *OutlookToStorageConfig) { c.IfExists = "merge" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewOutlookToStorage(cfg, testExtractor())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}

	_, err := NewOutlookToStorage(valid, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	flow, err := NewOutlookToStorage(valid, testExtractor())
	require.NoError(t, err)
	assert.Equal(t, outlook.DefaultLimit, flow.cfg.Request.Limit)
	assert.Equal(t, outlook.DefaultOutboxList, flow.cfg.Request.OutboxList)
	assert.False(t, flow.cfg.Request.Window.Start.IsZero())
}
