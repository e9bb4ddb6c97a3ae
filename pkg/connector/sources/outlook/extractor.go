package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/base"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"github.com/ajitpratap0/nebula-connectors/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SourceName is written to the source metadata column.
const SourceName = "Outlook"

// Extractor runs mailbox extractions against one account.
type Extractor struct {
	account    Account
	retries    int
	retryDelay time.Duration
	policy     frame.EmptyPolicy
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRetries sets how many times authentication is attempted.
func WithRetries(attempts int, delay time.Duration) Option {
	return func(e *Extractor) {
		e.retries = attempts
		e.retryDelay = delay
	}
}

// WithEmptyPolicy sets what happens when no message matches.
func WithEmptyPolicy(p frame.EmptyPolicy) Option {
	return func(e *Extractor) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithClock replaces time.Now, used for the download timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an extractor for account.
func NewExtractor(account Account, opts ...Option) *Extractor {
	e := &Extractor{
		account:    account,
		retries:    DefaultRequestRetries,
		retryDelay: time.Second,
		policy:     frame.EmptyWarn,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract authenticates, walks every folder of req.Mailbox and returns the
// matching messages as a frame. Authentication failures are logged and leave
// the mailbox empty, unless ctx ended while retrying. Listing errors are
// returned.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (*frame.Frame, error) {
	ctx, span := observability.StartSpan(ctx, "outlook", "extract",
		attribute.String("mailbox", req.Mailbox))
	log := e.logger.With(zap.String("mailbox", req.Mailbox))

	if err := e.authenticate(ctx, req.Mailbox, log); err != nil {
		span.End(err)
		return nil, err
	}

	folders, err := EnumerateFolders(ctx, e.account.Mailbox(req.Mailbox))
	if err != nil {
		span.End(err)
		return nil, err
	}
	metrics.FoldersScanned.WithLabelValues(req.Mailbox).Add(float64(folders.Len()))
	span.SetAttribute("folders", folders.Len())

	rows, err := ExtractMessages(ctx, folders, req, log)
	if err != nil {
		span.End(err)
		return nil, err
	}
	span.SetAttribute("messages", len(rows))

	f, err := e.BuildFrame(rows, req, log)
	span.End(err)
	return f, err
}

// authenticate only fails when ctx is done.
func (e *Extractor) authenticate(ctx context.Context, mailbox string, log *zap.Logger) error {
	policy := base.NewRetryPolicy(e.retries, e.retryDelay).LoggingRetries(log, "authenticate")
	if err := policy.Execute(ctx, func() error { return e.account.Authenticate(ctx) }); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, errors.ErrorTypeConnection, "authentication of %s interrupted", mailbox)
		}
		log.Warn(mailbox+" NOT Authenticated!", zap.Error(err))
		return nil
	}
	log.Info(mailbox + " Authenticated!")
	return nil
}

// BuildFrame turns rows into a frame. An empty result is handled by the
// empty policy; otherwise the source metadata columns are attached.
func (e *Extractor) BuildFrame(rows []frame.Row, req ExtractRequest, log *zap.Logger) (*frame.Frame, error) {
	f := frame.New(req.Mailbox, Columns...)
	if len(rows) == 0 {
		msg := fmt.Sprintf("No data was got from %s, days from %s", req.Mailbox, req.Window)
		if err := e.policy.HandleEmpty(log, msg); err != nil {
			return nil, err
		}
		return f, nil
	}

	for _, r := range rows {
		f.Append(r)
	}
	f.AddMetadata(SourceName, e.now())
	log.Info("mailbox extracted",
		zap.Int("rows", f.Len()))
	return f, nil
}
