package outlook

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/clients"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultGraphURL is the Microsoft Graph v1.0 endpoint.
	DefaultGraphURL = "https://graph.microsoft.com/v1.0"
	// DefaultLoginURL is the Azure AD authority host.
	DefaultLoginURL = "https://login.microsoftonline.com"

	graphScope      = "https://graph.microsoft.com/.default"
	rootFolderID    = "msgfolderroot"
	maxPageSize     = 1000
	messageSelector = "subject,from,toRecipients,categories,conversationId,conversationIndex,receivedDateTime"
)

// Credentials identifies the Azure AD application used to read mailboxes.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// CredentialFields lists the keys a credential mapping must carry.
var CredentialFields = []string{"client_id", "client_secret", "tenant_id"}

// CredentialsFromMap builds Credentials from a flat mapping.
func CredentialsFromMap(m map[string]string) (Credentials, error) {
	var missing []string
	for _, k := range CredentialFields {
		if strings.TrimSpace(m[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Credentials{}, errors.New(errors.ErrorTypeCredential, "malformed outlook credentials").
			WithDetail("missing", missing)
	}
	return Credentials{
		ClientID:     m["client_id"],
		ClientSecret: m["client_secret"],
		TenantID:     m["tenant_id"],
	}, nil
}

// GraphOptions configures a GraphAccount. Zero values select the public
// Microsoft endpoints and a default HTTP client.
type GraphOptions struct {
	GraphURL   string
	LoginURL   string
	HTTPClient *clients.HTTPClient
	Logger     *zap.Logger
}

// GraphAccount is an Account backed by the Microsoft Graph mail API using
// the client credentials grant.
type GraphAccount struct {
	graphURL string
	client   *clients.HTTPClient
	tokens   oauth2.TokenSource
	logger   *zap.Logger

	mu            sync.RWMutex
	authenticated bool
}

// NewGraphAccount creates an account for the given application credentials.
func NewGraphAccount(creds Credentials, opts GraphOptions) *GraphAccount {
	if opts.GraphURL == "" {
		opts.GraphURL = DefaultGraphURL
	}
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = clients.NewHTTPClient(nil, opts.Logger)
	}

	tokenURL := strings.TrimRight(opts.LoginURL, "/") + "/" + url.PathEscape(creds.TenantID) + "/oauth2/v2.0/token"
	return &GraphAccount{
		graphURL: strings.TrimRight(opts.GraphURL, "/"),
		client:   opts.HTTPClient,
		logger:   opts.Logger,
		tokens: clients.ClientCredentialsTokenSource(context.Background(), clients.OAuth2Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
		}, opts.HTTPClient),
	}
}

// Authenticate fetches an access token.
func (a *GraphAccount) Authenticate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := clients.BearerHeader(a.tokens); err != nil {
		return err
	}
	a.mu.Lock()
	a.authenticated = true
	a.mu.Unlock()
	a.logger.Debug("graph access token acquired")
	return nil
}

// IsAuthenticated reports whether a token has been obtained.
func (a *GraphAccount) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authenticated
}

// Mailbox returns the root folder of the named mailbox.
func (a *GraphAccount) Mailbox(name string) Folder {
	return &mailFolder{account: a, mailbox: name, id: rootFolderID, name: name, root: true}
}

func (a *GraphAccount) get(ctx context.Context, rawURL string, out interface{}) error {
	header, err := clients.BearerHeader(a.tokens)
	if err != nil {
		return err
	}
	_, err = a.client.DoJSON(ctx, http.MethodGet, rawURL, map[string]string{"Authorization": header}, nil, out)
	return err
}

func (a *GraphAccount) userURL(mailbox string) string {
	return a.graphURL + "/users/" + url.PathEscape(mailbox)
}

type folderPage struct {
	Value    []graphFolder `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

type graphFolder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type messagePage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphMessage struct {
	APIMessage
	Subject           *string  `json:"subject"`
	Categories        []string `json:"categories"`
	ConversationIndex *string  `json:"conversationIndex"`
}

func (m graphMessage) toMessage() (Message, error) {
	msg := Message{
		Subject:           m.Subject,
		Categories:        m.Categories,
		ConversationIndex: m.ConversationIndex,
		API:               m.APIMessage,
	}
	if m.ReceivedDateTime == nil {
		return msg, errors.New(errors.ErrorTypeData, "message without receivedDateTime")
	}
	received, err := time.Parse(time.RFC3339, *m.ReceivedDateTime)
	if err != nil {
		return msg, errors.Wrap(err, errors.ErrorTypeData, "invalid receivedDateTime")
	}
	msg.Received = received.UTC()
	return msg, nil
}

// mailFolder is a Folder backed by Graph mailFolders.
type mailFolder struct {
	account *GraphAccount
	mailbox string
	id      string
	name    string
	root    bool
}

func (f *mailFolder) Name() string {
	return f.name
}

func (f *mailFolder) Folders(ctx context.Context) ([]Folder, error) {
	var next string
	if f.root {
		if !f.account.IsAuthenticated() {
			return nil, nil
		}
		next = f.account.userURL(f.mailbox) + "/mailFolders"
	} else {
		next = f.account.userURL(f.mailbox) + "/mailFolders/" + url.PathEscape(f.id) + "/childFolders"
	}

	var folders []Folder
	for next != "" {
		var page folderPage
		if err := f.account.get(ctx, next, &page); err != nil {
			return nil, errors.Wrapf(err, errors.TypeOf(err), "failed to list folders of %q", f.name)
		}
		for _, gf := range page.Value {
			folders = append(folders, &mailFolder{
				account: f.account,
				mailbox: f.mailbox,
				id:      gf.ID,
				name:    gf.DisplayName,
			})
		}
		next = page.NextLink
	}
	return folders, nil
}

func (f *mailFolder) Messages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	top := limit
	if top > maxPageSize {
		top = maxPageSize
	}
	query := url.Values{}
	query.Set("$top", strconv.Itoa(top))
	query.Set("$orderby", "receivedDateTime desc")
	query.Set("$select", messageSelector)
	next := f.account.userURL(f.mailbox) + "/mailFolders/" + url.PathEscape(f.id) + "/messages?" + query.Encode()

	messages := make([]Message, 0, top)
	for next != "" && len(messages) < limit {
		var page messagePage
		if err := f.account.get(ctx, next, &page); err != nil {
			return nil, errors.Wrapf(err, errors.TypeOf(err), "failed to list messages of %q", f.name)
		}
		for _, gm := range page.Value {
			if len(messages) == limit {
				break
			}
			msg, err := gm.toMessage()
			if err != nil {
				return nil, err
			}
			messages = append(messages, msg)
		}
		next = page.NextLink
	}
	return messages, nil
}
