// Package salesforce talks to the Salesforce REST API: password flow login,
// record upsert keyed by Id or an external id field, and SOQL downloads.
package salesforce

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/clients"
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"go.uber.org/zap"
)

// Supported environments.
const (
	EnvDev = "DEV"
	EnvQA  = "QA"
)

const (
	DefaultDomain     = "test"
	DefaultClientID   = "nebula"
	DefaultAPIVersion = "v57.0"
)

// Options configures a login.
type Options struct {
	Env        string
	Domain     string
	ClientID   string
	APIVersion string
	// LoginURL overrides https://<domain>.salesforce.com.
	LoginURL   string
	HTTPClient *clients.HTTPClient
	Logger     *zap.Logger
}

// Credentials for the password flow. Token is the user's security token and
// is only sent in the QA environment.
type Credentials struct {
	Username     string
	Password     string
	Token        string
	ClientSecret string
}

// CredentialKey returns the credential store key of an environment.
func CredentialKey(env string) string {
	return "salesforce." + strings.ToLower(env)
}

// RequiredCredentialFields lists the fields env needs.
func RequiredCredentialFields(env string) []string {
	if strings.ToUpper(env) == EnvQA {
		return []string{"username", "password", "token"}
	}
	return []string{"username", "password"}
}

// ValidateEnv checks that env is DEV or QA.
func ValidateEnv(env string) error {
	switch strings.ToUpper(env) {
	case EnvDev, EnvQA:
		return nil
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown environment %q: the only available environments are DEV and QA", env)
	}
}

// LoadCredentials resolves the credentials of cfg for env.
func LoadCredentials(cfg *config.BaseConfig, env string) (Credentials, error) {
	if err := ValidateEnv(env); err != nil {
		return Credentials{}, err
	}
	raw, err := config.LoadCredentials(cfg, CredentialKey(env), RequiredCredentialFields(env)...)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Username:     raw["username"],
		Password:     raw["password"],
		Token:        raw["token"],
		ClientSecret: raw["client_secret"],
	}, nil
}

// Client is an authenticated Salesforce REST client.
type Client struct {
	http        *clients.HTTPClient
	instanceURL string
	apiVersion  string
	authHeader  string
	logger      *zap.Logger
}

// Login authenticates with the password grant and returns a client bound to
// the instance named in the token response.
func Login(ctx context.Context, creds Credentials, opts Options) (*Client, error) {
	if opts.Env == "" {
		opts.Env = EnvDev
	}
	if err := ValidateEnv(opts.Env); err != nil {
		return nil, err
	}
	if opts.Domain == "" {
		opts.Domain = DefaultDomain
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.LoginURL == "" {
		opts.LoginURL = "https://" + opts.Domain + ".salesforce.com"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = clients.NewHTTPClient(nil, opts.Logger)
	}

	password := creds.Password
	if strings.ToUpper(opts.Env) == EnvQA {
		password += creds.Token
	}

	tok, err := clients.PasswordToken(ctx, clients.OAuth2Config{
		ClientID:     opts.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     strings.TrimRight(opts.LoginURL, "/") + "/services/oauth2/token",
	}, creds.Username, password, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	instance, _ := tok.Extra("instance_url").(string)
	if instance == "" {
		return nil, errors.New(errors.ErrorTypeAuthentication, "token response has no instance_url")
	}

	opts.Logger.Info("salesforce login succeeded",
		zap.String("env", strings.ToUpper(opts.Env)),
		zap.String("instance", instance))

	return &Client{
		http:        opts.HTTPClient,
		instanceURL: strings.TrimRight(instance, "/"),
		apiVersion:  opts.APIVersion,
		authHeader:  tok.Type() + " " + tok.AccessToken,
		logger:      opts.Logger,
	}, nil
}

// InstanceURL returns the instance the client is bound to.
func (c *Client) InstanceURL() string {
	return c.instanceURL
}

func (c *Client) dataURL(path string) string {
	return fmt.Sprintf("%s/services/data/%s/%s", c.instanceURL, c.apiVersion, strings.TrimLeft(path, "/"))
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out interface{}) (int, error) {
	return c.http.DoJSON(ctx, method, rawURL, map[string]string{"Authorization": c.authHeader}, body, out)
}

func escapeSegments(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}
