package outlook

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func scenarioAccount(window Window) *fakeAccount {
	projects := folder("Projects")
	projects.messages = []Message{message(window.Start.Add(3*time.Hour), "plan", "a@example.com", "b@example.com")}
	inbox := folder("Inbox", projects)
	inbox.messages = []Message{message(window.Start.Add(time.Hour), "hello", "a@example.com")}
	sent := folder("Sent Items")
	sent.messages = []Message{message(window.Start.Add(2*time.Hour), "re: hello", "c@example.com")}
	return &fakeAccount{root: folder("user@example.com", inbox, sent)}
}

func TestExtractorExtract(t *testing.T) {
	window, err := NewWindow("2024-05-01", "2024-05-02", time.Now())
	require.NoError(t, err)
	downloaded := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)

	observed, logs := observer.New(zapcore.InfoLevel)
	account := scenarioAccount(window)
	e := NewExtractor(account,
		WithLogger(zap.New(observed)),
		WithClock(func() time.Time { return downloaded }))

	f, err := e.Extract(context.Background(), NewExtractRequest("user@example.com", window))
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())

	assert.Equal(t, append(append([]string{}, Columns...), frame.SourceColumn, frame.DownloadedAtColumn), f.Columns)
	assert.Equal(t, []interface{}{"Inbox", "Sent Items", "Projects"}, f.Column(ColumnFolder))
	assert.Equal(t, []interface{}{true, false, true}, f.Column(ColumnInbox))
	assert.Equal(t, "a@example.com, b@example.com", f.Rows[2][ColumnRecipients])
	assert.Equal(t, "Outlook", f.Rows[0][frame.SourceColumn])
	assert.Equal(t, downloaded, f.Rows[0][frame.DownloadedAtColumn])

	assert.Equal(t, 1, logs.FilterMessage("user@example.com Authenticated!").Len())
}

func TestExtractorRetriesAuthentication(t *testing.T) {
	window, err := NewWindow("2024-05-01", "2024-05-02", time.Now())
	require.NoError(t, err)

	account := scenarioAccount(window)
	account.failures = 2
	e := NewExtractor(account, WithRetries(3, time.Millisecond))

	f, err := e.Extract(context.Background(), NewExtractRequest("user@example.com", window))
	require.NoError(t, err)
	assert.Equal(t, 3, account.attempts)
	assert.Equal(t, 3, f.Len())
}

func TestExtractorAuthenticationDeadline(t *testing.T) {
	window, err := NewWindow("2024-05-01", "2024-05-02", time.Now())
	require.NoError(t, err)

	account := scenarioAccount(window)
	account.failures = 1
	e := NewExtractor(account, WithRetries(3, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	f, err := e.Extract(ctx, NewExtractRequest("user@example.com", window))
	require.Error(t, err)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Equal(t, 1, account.attempts)
}

func TestExtractorUnauthenticatedMailboxIsEmpty(t *testing.T) {
	window, err := NewWindow("2024-05-01", "2024-05-02", time.Now())
	require.NoError(t, err)
	req := NewExtractRequest("user@example.com", window)

	newAccount := func() *fakeAccount {
		account := scenarioAccount(window)
		account.failures = 100
		return account
	}

	t.Run("warn", func(t *testing.T) {
		observed, logs := observer.New(zapcore.InfoLevel)
		account := newAccount()
		e := NewExtractor(account, WithRetries(2, time.Millisecond), WithLogger(zap.New(observed)))

		f, err := e.Extract(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, f.Empty())
		assert.Equal(t, Columns, f.Columns)
		assert.Equal(t, 2, account.attempts)

		assert.Equal(t, 1, logs.FilterMessage("user@example.com NOT Authenticated!").Len())
		warning := logs.FilterMessage("No data was got from user@example.com, days from 2024-05-01 00:00:00 to 2024-05-02 00:00:00")
		require.Equal(t, 1, warning.Len())
		assert.Equal(t, zapcore.WarnLevel, warning.All()[0].Level)
	})

	t.Run("skip", func(t *testing.T) {
		e := NewExtractor(newAccount(), WithRetries(1, 0), WithEmptyPolicy(frame.EmptySkip))
		_, err := e.Extract(context.Background(), req)
		require.Error(t, err)
		assert.True(t, frame.IsSkip(err))
	})

	t.Run("fail", func(t *testing.T) {
		e := NewExtractor(newAccount(), WithRetries(1, 0), WithEmptyPolicy(frame.EmptyFail))
		_, err := e.Extract(context.Background(), req)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeEmpty))
	})
}

func TestExtractorPropagatesListingErrors(t *testing.T) {
	window, err := NewWindow("2024-05-01", "2024-05-02", time.Now())
	require.NoError(t, err)

	account := scenarioAccount(window)
	account.root.children[0].(*fakeFolder).listErr = errors.New(errors.ErrorTypeConnection, "boom")

	_, err = NewExtractor(account).Extract(context.Background(), NewExtractRequest("user@example.com", window))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
