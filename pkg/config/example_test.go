package config_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ExampleNewBaseConfig demonstrates creating a new base configuration
// with default values.
func ExampleNewBaseConfig() {
	cfg := config.NewBaseConfig("outlook", "outlook")

	fmt.Printf("Batch Size: %d\n", cfg.Performance.BatchSize)
	fmt.Printf("Request Timeout: %s\n", cfg.Timeouts.Request)
	fmt.Printf("Retry Attempts: %d\n", cfg.Reliability.RetryAttempts)

	// Output:
	// Batch Size: 1000
	// Request Timeout: 30s
	// Retry Attempts: 10
}

// ExampleBaseConfig_Validate shows how to validate a configuration
// before using it.
func ExampleBaseConfig_Validate() {
	cfg := config.NewBaseConfig("salesforce", "salesforce")
	cfg.Properties["env"] = "QA"

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}

func TestLoadBaseConfigSubstitutesEnv(t *testing.T) {
	t.Setenv("OUTLOOK_SECRET", "s3cr3t")

	path := filepath.Join(t.TempDir(), "source.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
type: outlook
security:
  credentials:
    client_id: id
    client_secret: ${OUTLOOK_SECRET}
    tenant_id: tenant
properties:
  mailbox: user@example.com
  outbox_list: "Sent Items, Outbox"
  limit: "25"
`), 0o600))

	cfg, err := config.LoadBaseConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "outlook", cfg.Name)
	assert.Equal(t, "s3cr3t", cfg.Security.Credentials["client_secret"])
	assert.Equal(t, 1000, cfg.Performance.BatchSize)
	assert.Equal(t, []string{"Sent Items", "Outbox"}, cfg.ListProperty("outbox_list", nil))

	limit, err := cfg.IntProperty("limit", 10000)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	budget, err := cfg.IntProperty("address_limit", 8000)
	require.NoError(t, err)
	assert.Equal(t, 8000, budget)
}

func TestIntPropertyRejectsGarbage(t *testing.T) {
	cfg := config.NewBaseConfig("outlook", "outlook")
	cfg.Properties["limit"] = "ten"

	_, err := cfg.IntProperty("limit", 1)
	assert.Error(t, err)
}

func TestCredentialStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  outlook:
    client_id: file-id
    client_secret: file-secret
    tenant_id: file-tenant
  salesforce:
    username: user
`), 0o600))

	store, err := config.NewCredentialStore(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"outlook", "salesforce"}, store.Keys())

	t.Run("file values", func(t *testing.T) {
		creds := store.Get("outlook")
		assert.Equal(t, "file-id", creds["client_id"])
		assert.Equal(t, "file-tenant", creds["tenant_id"])
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("NEBULA_SOURCES_OUTLOOK_CLIENT_SECRET", "env-secret")
		creds := store.Get("outlook")
		assert.Equal(t, "env-secret", creds["client_secret"])
	})

	t.Run("resolve from store", func(t *testing.T) {
		cfg := config.NewBaseConfig("outlook", "outlook")
		creds, err := config.ResolveCredentials(cfg, store, "outlook", "client_id", "client_secret", "tenant_id")
		require.NoError(t, err)
		assert.Len(t, creds, 3)
	})

	t.Run("missing fields", func(t *testing.T) {
		cfg := config.NewBaseConfig("salesforce", "salesforce")
		_, err := config.ResolveCredentials(cfg, store, "salesforce", "username", "password")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeCredential))
	})

	t.Run("missing entry", func(t *testing.T) {
		cfg := config.NewBaseConfig("gone", "gone")
		_, err := config.ResolveCredentials(cfg, store, "gone", "client_id")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeCredential))
	})
}

func TestCredentialStoreExplicitPathMustExist(t *testing.T) {
	_, err := config.NewCredentialStore(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
