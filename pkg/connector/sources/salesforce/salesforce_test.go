package salesforce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type patchCall struct {
	Path string
	Body map[string]interface{}
}

// fakeSalesforce serves the token endpoint, SOQL queries and sobject PATCH
// requests. upsertStatus maps a merge key suffix to a response status.
type fakeSalesforce struct {
	*httptest.Server

	mu           sync.Mutex
	passwords    []string
	patches      []patchCall
	queries      []string
	upsertStatus map[string]int
	emptyQuery   bool
}

func newFakeSalesforce(t *testing.T) *fakeSalesforce {
	fs := &fakeSalesforce{upsertStatus: map[string]int{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeSalesforce) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if r.URL.Path == "/services/oauth2/token" {
		_ = r.ParseForm()
		fs.passwords = append(fs.passwords, r.PostForm.Get("password"))
		if r.PostForm.Get("username") != "user@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		fmt.Fprintf(w, `{"access_token":"sf-token","token_type":"Bearer","instance_url":"%s"}`, fs.URL)
		return
	}
	if r.Header.Get("Authorization") != "Bearer sf-token" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `[{"errorCode":"INVALID_SESSION_ID"}]`)
		return
	}

	switch {
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/services/data/v57.0/sobjects/"):
		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(data, &body)
		fs.patches = append(fs.patches, patchCall{Path: r.URL.Path, Body: body})

		status := http.StatusNoContent
		for suffix, code := range fs.upsertStatus {
			if strings.HasSuffix(r.URL.Path, suffix) {
				status = code
			}
		}
		w.WriteHeader(status)
		if status == http.StatusCreated {
			fmt.Fprint(w, `{"id":"001","success":true}`)
		}
		if status == http.StatusBadRequest {
			fmt.Fprint(w, `[{"errorCode":"MALFORMED_ID"}]`)
		}
	case r.URL.Path == "/services/data/v57.0/query":
		fs.queries = append(fs.queries, r.URL.Query().Get("q"))
		if fs.emptyQuery {
			fmt.Fprint(w, `{"totalSize":0,"done":true,"records":[]}`)
			return
		}
		fmt.Fprint(w, `{"totalSize":3,"done":false,"nextRecordsUrl":"/services/data/v57.0/query/01g-2000","records":[
			{"attributes":{"type":"Account"},"Id":"001A","Name":"Acme"},
			{"attributes":{"type":"Account"},"Id":"001B","Name":"Globex"}]}`)
	case r.URL.Path == "/services/data/v57.0/query/01g-2000":
		fmt.Fprint(w, `{"totalSize":3,"done":true,"records":[
			{"attributes":{"type":"Account"},"Id":"001C","Name":"Initech"}]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func login(t *testing.T, fs *fakeSalesforce) *Client {
	t.Helper()
	c, err := Login(context.Background(), Credentials{Username: "user@example.com", Password: "pw"},
		Options{LoginURL: fs.URL})
	require.NoError(t, err)
	return c
}

func TestValidateEnv(t *testing.T) {
	assert.NoError(t, ValidateEnv("DEV"))
	assert.NoError(t, ValidateEnv("qa"))
	err := ValidateEnv("PROD")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "DEV and QA")
}

func TestQueryString(t *testing.T) {
	assert.Equal(t, "SELECT FIELDS(STANDARD) FROM Account", Query{Table: "Account"}.String())
	assert.Equal(t, "SELECT Id, Name FROM Account", Query{Table: "Account", Columns: []string{"Id", "Name"}}.String())
	assert.Equal(t, "SELECT Id FROM Contact", Query{SOQL: "SELECT Id FROM Contact", Table: "Account"}.String())
}

func TestLoginAppendsSecurityTokenInQA(t *testing.T) {
	fs := newFakeSalesforce(t)
	creds := Credentials{Username: "user@example.com", Password: "pw", Token: "TOKEN"}

	_, err := Login(context.Background(), creds, Options{Env: "DEV", LoginURL: fs.URL})
	require.NoError(t, err)
	c, err := Login(context.Background(), creds, Options{Env: "QA", LoginURL: fs.URL})
	require.NoError(t, err)

	assert.Equal(t, []string{"pw", "pwTOKEN"}, fs.passwords)
	assert.Equal(t, fs.URL, c.InstanceURL())
}

func TestLoginRejected(t *testing.T) {
	fs := newFakeSalesforce(t)
	_, err := Login(context.Background(), Credentials{Username: "intruder", Password: "pw"}, Options{LoginURL: fs.URL})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestUpsertWithExternalID(t *testing.T) {
	fs := newFakeSalesforce(t)
	fs.upsertStatus["/A1"] = http.StatusCreated
	c := login(t, fs)

	f := frame.New("accounts", "ExtId__c", "Name", "Id")
	f.Append(frame.Row{"ExtId__c": "A1", "Name": "Acme", "Id": "001A"})
	f.Append(frame.Row{"ExtId__c": nil, "Name": "skipped"})
	f.Append(frame.Row{"ExtId__c": "A2", "Name": "Globex", "Id": nil})

	require.NoError(t, c.Upsert(context.Background(), f, "Account", "ExtId__c"))

	require.Len(t, fs.patches, 2)
	assert.Equal(t, "/services/data/v57.0/sobjects/Account/ExtId__c/A1", fs.patches[0].Path)
	assert.Equal(t, map[string]interface{}{"Name": "Acme"}, fs.patches[0].Body)
	assert.Equal(t, "/services/data/v57.0/sobjects/Account/ExtId__c/A2", fs.patches[1].Path)
	assert.NotContains(t, fs.patches[1].Body, "Id")

	assert.Equal(t, "A1", f.Rows[0]["ExtId__c"], "frame rows are not modified")
}

func TestUpsertByID(t *testing.T) {
	fs := newFakeSalesforce(t)
	c := login(t, fs)

	f := frame.New("accounts", "Id", "Name")
	f.Append(frame.Row{"Id": "001A", "Name": "Acme"})
	require.NoError(t, c.Upsert(context.Background(), f, "Account", ""))

	require.Len(t, fs.patches, 1)
	assert.Equal(t, "/services/data/v57.0/sobjects/Account/001A", fs.patches[0].Path)
	assert.Equal(t, map[string]interface{}{"Name": "Acme"}, fs.patches[0].Body)
}

func TestUpsertErrors(t *testing.T) {
	fs := newFakeSalesforce(t)
	fs.upsertStatus["/BAD"] = http.StatusBadRequest
	fs.upsertStatus["/GONE"] = http.StatusNotFound
	c := login(t, fs)
	ctx := context.Background()

	t.Run("empty frame", func(t *testing.T) {
		require.NoError(t, c.Upsert(ctx, frame.New("empty", "Id"), "Account", ""))
	})

	t.Run("missing external id column", func(t *testing.T) {
		f := frame.New("accounts", "Name")
		f.Append(frame.Row{"Name": "Acme"})
		err := c.Upsert(ctx, f, "Account", "ExtId__c")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("malformed request", func(t *testing.T) {
		f := frame.New("accounts", "Id")
		f.Append(frame.Row{"Id": "BAD"})
		err := c.Upsert(ctx, f, "Account", "")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		assert.Contains(t, err.Error(), "upsert of record BAD failed")
	})

	t.Run("unexpected status", func(t *testing.T) {
		f := frame.New("accounts", "Id")
		f.Append(frame.Row{"Id": "GONE"})
		err := c.Upsert(ctx, f, "Account", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "with response 404")
	})

	assert.Len(t, fs.patches, 2)
}

func TestDownloadFollowsNextRecordsURL(t *testing.T) {
	fs := newFakeSalesforce(t)
	c := login(t, fs)

	records, err := c.Download(context.Background(), Query{Table: "Account", Columns: []string{"Id", "Name"}})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.NotContains(t, r, "attributes")
	}
	assert.Equal(t, "Initech", records[2]["Name"])
	assert.Equal(t, []string{"SELECT Id, Name FROM Account"}, fs.queries)

	_, err = c.Download(context.Background(), Query{})
	assert.Error(t, err)
}

func TestToFrame(t *testing.T) {
	fs := newFakeSalesforce(t)
	c := login(t, fs)

	f, err := c.ToFrame(context.Background(), Query{Table: "Account"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []string{"Id", "Name", frame.SourceColumn, frame.DownloadedAtColumn}, f.Columns)
	assert.Equal(t, SourceName, f.Rows[0][frame.SourceColumn])

	fs.mu.Lock()
	fs.emptyQuery = true
	fs.mu.Unlock()
	_, err = c.ToFrame(context.Background(), Query{SOQL: "SELECT Id FROM Account WHERE Name = 'nobody'"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmpty))
}

func TestSalesforceSourceThroughRegistry(t *testing.T) {
	fs := newFakeSalesforce(t)
	ctx := context.Background()

	cfg := config.NewBaseConfig("salesforce", "salesforce")
	cfg.Security.Credentials = map[string]string{"username": "user@example.com", "password": "pw"}
	cfg.Properties["login_url"] = fs.URL
	cfg.Properties["table"] = "Account"
	cfg.Properties["columns"] = "Id, Name"

	src, err := registry.CreateSource("salesforce", cfg)
	require.NoError(t, err)
	require.NoError(t, src.Initialize(ctx, cfg))
	defer src.Close(ctx)

	schema, err := src.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name"}, schema.FieldNames())

	stream, err := src.Read(ctx)
	require.NoError(t, err)
	f, err := frame.Collect(ctx, "accounts", schema, stream)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Acme", "Globex", "Initech"}, f.Column("Name"))
}

func TestSalesforceSourceQARequiresToken(t *testing.T) {
	cfg := config.NewBaseConfig("salesforce", "salesforce")
	cfg.Properties["env"] = "QA"
	cfg.Security.Credentials = map[string]string{"username": "user@example.com", "password": "pw"}

	_, err := NewSalesforceSource("salesforce", cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCredential))
}

func TestSalesforceQueryEscaping(t *testing.T) {
	fs := newFakeSalesforce(t)
	c := login(t, fs)
	soql := "SELECT Id FROM Account WHERE Name = 'A&B'"

	_, err := c.Download(context.Background(), Query{SOQL: soql})
	require.NoError(t, err)
	assert.Equal(t, soql, fs.queries[0])
}
