// Package outlook extracts mailbox messages through Microsoft Graph into a
// frame. Extraction walks every folder of a mailbox, keeps the messages
// received inside a window and flattens each one into a row.
package outlook

import (
	"context"
	"time"
)

// Folder is a handle on one mailbox folder.
type Folder interface {
	Name() string
	// Folders lists the direct child folders.
	Folders(ctx context.Context) ([]Folder, error)
	// Messages returns up to limit messages, newest first.
	Messages(ctx context.Context, limit int) ([]Message, error)
}

// Account authenticates against the mail service and opens mailboxes.
type Account interface {
	Authenticate(ctx context.Context) error
	IsAuthenticated() bool
	// Mailbox returns the root folder of the named mailbox. An account that
	// never authenticated returns a root without children.
	Mailbox(name string) Folder
}

// Message is a single mail item as returned by Graph.
type Message struct {
	Received          time.Time
	Subject           *string
	Categories        []string
	ConversationIndex *string
	API               APIMessage
}

// APIMessage holds the raw Graph fields used for sender, recipient and
// conversation columns.
type APIMessage struct {
	From             *Recipient  `json:"from,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients,omitempty"`
	ConversationID   *string     `json:"conversationId,omitempty"`
	ReceivedDateTime *string     `json:"receivedDateTime,omitempty"`
}

// Recipient is a Graph recipient object.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// EmailAddress is the address part of a recipient.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}
