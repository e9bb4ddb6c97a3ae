package outlook

import (
	"context"
	"fmt"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/metrics"
	"go.uber.org/zap"
)

// Row columns, in frame order.
const (
	ColumnFolder            = "(sub)folder"
	ColumnConversationID    = "conversation ID"
	ColumnConversationIndex = "conversation index"
	ColumnCategories        = "categories"
	ColumnSender            = "sender"
	ColumnSubject           = "subject"
	ColumnRecipients        = "recivers"
	ColumnReceivedTime      = "received_time"
	ColumnMailAddress       = "mail_adress"
	ColumnInbox             = "Inbox"
)

// Columns lists the row columns in frame order.
var Columns = []string{
	ColumnFolder,
	ColumnConversationID,
	ColumnConversationIndex,
	ColumnCategories,
	ColumnSender,
	ColumnSubject,
	ColumnRecipients,
	ColumnReceivedTime,
	ColumnMailAddress,
	ColumnInbox,
}

const (
	DefaultLimit          = 10000
	DefaultAddressLimit   = 8000
	DefaultRequestRetries = 10

	placeholder        = " "
	recipientSeparator = ", "
)

// DefaultOutboxList names the folders treated as outgoing mail.
var DefaultOutboxList = []string{"Sent Items"}

// ExtractRequest carries everything one extraction run needs.
type ExtractRequest struct {
	Mailbox string
	Window  Window
	// Limit bounds the newest messages requested per folder, before filtering.
	Limit int
	// AddressLimit is the character budget of the recipients column.
	AddressLimit int
	OutboxList   []string
}

// NewExtractRequest returns a request with the default limits and outbox list.
func NewExtractRequest(mailbox string, window Window) ExtractRequest {
	return ExtractRequest{
		Mailbox:      mailbox,
		Window:       window,
		Limit:        DefaultLimit,
		AddressLimit: DefaultAddressLimit,
		OutboxList:   append([]string(nil), DefaultOutboxList...),
	}
}

// ExtractMessages lists the messages of every folder in folders and returns
// one row per message received inside the request window.
func ExtractMessages(ctx context.Context, folders *FolderMap, req ExtractRequest, log *zap.Logger) ([]frame.Row, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mailAddress := MailAddress(req.Mailbox)

	var rows []frame.Row
	for _, key := range folders.Keys() {
		folder, _ := folders.Get(key)

		messages, err := folder.Messages(ctx, req.Limit)
		if err != nil {
			return nil, err
		}

		count := 0
		for _, msg := range messages {
			if !req.Window.Contains(msg.Received) {
				continue
			}
			row := BuildRow(folder.Name(), key, msg, req.AddressLimit, req.OutboxList)
			row[ColumnMailAddress] = mailAddress
			rows = append(rows, row)
			count++
		}

		if count > 0 {
			log.Info(fmt.Sprintf("folder: %s  messages: %d", padRight(key, 76, '-'), count),
				zap.String("folder", key),
				zap.Int("messages", count))
			metrics.MessagesExtracted.WithLabelValues(req.Mailbox).Add(float64(count))
		}
	}
	return rows, nil
}

// BuildRow flattens msg into a row. The mail address column is left to the
// caller.
func BuildRow(folderName, key string, msg Message, addressLimit int, outboxList []string) frame.Row {
	row := frame.Row{
		ColumnFolder:            folderName,
		ColumnConversationID:    nullableString(msg.API.ConversationID),
		ColumnConversationIndex: placeholder,
		ColumnCategories:        placeholder,
		ColumnSender:            nil,
		ColumnSubject:           nil,
		ColumnRecipients:        JoinRecipients(msg.API.ToRecipients, addressLimit),
		ColumnReceivedTime:      nullableString(msg.API.ReceivedDateTime),
		ColumnInbox:             IsInbox(key, outboxList),
	}

	if msg.ConversationIndex != nil {
		row[ColumnConversationIndex] = *msg.ConversationIndex
	}
	if msg.Categories != nil {
		row[ColumnCategories] = strings.Join(msg.Categories, recipientSeparator)
	}
	if msg.API.From != nil {
		row[ColumnSender] = msg.API.From.EmailAddress.Address
	}
	if msg.Subject != nil {
		row[ColumnSubject] = strings.ReplaceAll(*msg.Subject, "\t", " ")
	}
	return row
}

// JoinRecipients joins recipient addresses with ", ", stopping before the
// first address that would bring the text to budget characters or more.
func JoinRecipients(recipients []Recipient, budget int) string {
	acc := placeholder
	for _, r := range recipients {
		add := recipientSeparator + r.EmailAddress.Address
		if len(acc)+len(add) >= budget {
			break
		}
		acc += add
	}
	return strings.Trim(acc, recipientSeparator)
}

// MailAddress turns the local part of a mailbox into an identifier,
// replacing "." and "-" with "_".
func MailAddress(mailbox string) string {
	local, _, _ := strings.Cut(mailbox, "@")
	return strings.NewReplacer(".", "_", "-", "_").Replace(local)
}

// IsInbox reports whether key names an incoming folder, that is one whose
// key does not contain any outbox name, ignoring case.
func IsInbox(key string, outboxList []string) bool {
	lower := strings.ToLower(key)
	for _, outbox := range outboxList {
		if strings.Contains(lower, strings.ToLower(outbox)) {
			return false
		}
	}
	return true
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func padRight(s string, width int, pad byte) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(string(pad), width-len(s))
}
