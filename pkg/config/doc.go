// Package config provides configuration management for nebula connectors.
//
// # Key Features
//
//   - BaseConfig: single configuration structure that all connectors use
//   - Properties: connector specific string settings (mailbox, table, output path)
//   - Environment variable substitution with ${VAR_NAME} syntax
//   - CredentialStore: viper backed credential lookup by key
//
// # Usage
//
//	cfg, err := config.LoadBaseConfig("outlook.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	store, _ := config.NewCredentialStore("")
//	creds, err := config.ResolveCredentials(cfg, store, "outlook",
//		"client_id", "client_secret", "tenant_id")
//
// # Environment Variable Substitution
//
// Any ${VAR} in a YAML file passed to Load is replaced with the value of the
// environment variable before parsing; unset variables become empty strings.
package config
