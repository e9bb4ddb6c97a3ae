package clients

import (
	"context"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Config configures a token source.
type OAuth2Config struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// ClientCredentialsTokenSource returns a caching token source for the
// client credentials grant. Token requests go through base when non-nil.
func ClientCredentialsTokenSource(ctx context.Context, cfg OAuth2Config, base *HTTPClient) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(withHTTPClient(ctx, base))
}

// PasswordToken performs the resource owner password grant.
func PasswordToken(ctx context.Context, cfg OAuth2Config, username, password string, base *HTTPClient) (*oauth2.Token, error) {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: cfg.Scopes,
	}
	tok, err := oc.PasswordCredentialsToken(withHTTPClient(ctx, base), username, password)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "password grant failed")
	}
	return tok, nil
}

// BearerHeader fetches a token from ts and formats an Authorization header value.
func BearerHeader(ts oauth2.TokenSource) (string, error) {
	tok, err := ts.Token()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to obtain access token")
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

func withHTTPClient(ctx context.Context, base *HTTPClient) context.Context {
	if base == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, base.StandardClient())
}
