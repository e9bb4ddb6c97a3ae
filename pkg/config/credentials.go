package config

import (
	stderrors "errors"
	"sort"
	"strings"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/spf13/viper"
)

// CredentialStore resolves flat credential mappings by key. Entries live under
// "sources.<key>" in a YAML credentials file and may be overridden with
// NEBULA_SOURCES_<KEY>_<FIELD> environment variables.
//
//	sources:
//	  outlook:
//	    client_id: ...
//	    client_secret: ...
//	    tenant_id: ...
type CredentialStore struct {
	v *viper.Viper
}

// NewCredentialStore loads the credentials file at path. An empty path searches
// ./credentials.yaml and $HOME/.config/nebula/credentials.yaml; a missing file is
// only an error when the path was given explicitly.
func NewCredentialStore(path string) (*CredentialStore, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NEBULA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("credentials")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/nebula")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read credentials file")
		}
	}

	return &CredentialStore{v: v}, nil
}

// Get returns the credential mapping stored under key. Fields named in want are
// also looked up individually so environment overrides apply to them even when
// the file has no entry for the key.
func (s *CredentialStore) Get(key string, want ...string) map[string]string {
	prefix := "sources." + strings.ToLower(key)
	creds := make(map[string]string)

	for field := range s.v.GetStringMapString(prefix) {
		want = append(want, field)
	}
	for _, field := range want {
		if value := s.v.GetString(prefix + "." + field); value != "" {
			creds[field] = value
		}
	}
	return creds
}

// Keys lists the configured credential entries.
func (s *CredentialStore) Keys() []string {
	keys := make([]string, 0)
	for k := range s.v.GetStringMap("sources") {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveCredentials returns the inline credentials of cfg, or the store entry
// named by cfg.Security.ConfigKey (defaulting to defaultKey). Every field in
// required must be present and non-empty.
func ResolveCredentials(cfg *BaseConfig, store *CredentialStore, defaultKey string, required ...string) (map[string]string, error) {
	creds := cfg.Security.Credentials
	if len(creds) == 0 && store != nil {
		key := cfg.Security.ConfigKey
		if key == "" {
			key = defaultKey
		}
		creds = store.Get(key, required...)
	}

	if len(creds) == 0 {
		return nil, errors.New(errors.ErrorTypeCredential, "missing credentials")
	}

	var missing []string
	for _, field := range required {
		if strings.TrimSpace(creds[field]) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, errors.New(errors.ErrorTypeCredential, "malformed credentials").
			WithDetail("missing", missing)
	}
	return creds, nil
}

// LoadCredentials resolves credentials for cfg, reading the credentials file
// named by the "credentials_file" property only when cfg has no inline
// credentials.
func LoadCredentials(cfg *BaseConfig, defaultKey string, required ...string) (map[string]string, error) {
	var store *CredentialStore
	if !cfg.Security.HasCredentials() {
		s, err := NewCredentialStore(cfg.Property("credentials_file", ""))
		if err != nil {
			return nil, err
		}
		store = s
	}
	return ResolveCredentials(cfg, store, defaultKey, required...)
}
