package outlook

import (
	"context"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
)

type fakeFolder struct {
	name      string
	children  []Folder
	messages  []Message
	listErr   error
	lastLimit int
}

func (f *fakeFolder) Name() string { return f.name }

func (f *fakeFolder) Folders(ctx context.Context) ([]Folder, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.children, nil
}

func (f *fakeFolder) Messages(ctx context.Context, limit int) ([]Message, error) {
	f.lastLimit = limit
	if len(f.messages) > limit {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func folder(name string, children ...Folder) *fakeFolder {
	return &fakeFolder{name: name, children: children}
}

type fakeAccount struct {
	root          *fakeFolder
	failures      int
	attempts      int
	authenticated bool
}

func (a *fakeAccount) Authenticate(ctx context.Context) error {
	a.attempts++
	if a.attempts <= a.failures {
		return errors.New(errors.ErrorTypeAuthentication, "invalid client secret")
	}
	a.authenticated = true
	return nil
}

func (a *fakeAccount) IsAuthenticated() bool { return a.authenticated }

func (a *fakeAccount) Mailbox(name string) Folder {
	if !a.authenticated {
		return folder(name)
	}
	return a.root
}

func strPtr(s string) *string { return &s }

func message(received time.Time, subject string, to ...string) Message {
	ts := received.UTC().Format(time.RFC3339)
	msg := Message{
		Received: received,
		Subject:  strPtr(subject),
		API: APIMessage{
			From:             &Recipient{EmailAddress: EmailAddress{Address: "sender@example.com"}},
			ConversationID:   strPtr("conv-" + subject),
			ReceivedDateTime: &ts,
		},
	}
	for _, addr := range to {
		msg.API.ToRecipients = append(msg.API.ToRecipients, Recipient{EmailAddress: EmailAddress{Address: addr}})
	}
	return msg
}
