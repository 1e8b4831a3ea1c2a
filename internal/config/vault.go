// Package config holds the Vault-backed secret source that cmd/gatewayd
// reads its channel secrets and event bus key from at startup. There is
// no flag-parsing or file-loading
// surface here — config is always handed in as a struct (out of scope
// per spec).
package config

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// SecretManager wraps the Vault API client for reading secrets.
type SecretManager struct {
	client *api.Client
}

// NewSecretManager creates a Vault client pointed at the given address and
// authenticated with the provided token.
func NewSecretManager(address, token string) (*SecretManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// GetSecret reads a secret at the given path and returns the raw data map.
// For KV v2 backends the caller must unwrap the nested "data" key.
func (s *SecretManager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 is a convenience wrapper that reads from a KV v2 backend and
// returns the inner "data" map, unwrapping the v2 envelope automatically.
func (s *SecretManager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := s.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// GetBase64Key reads the base64-encoded key string stored under fieldName
// in the KV v2 secret at path and returns it still encoded; decoding is
// left to the caller.
func (s *SecretManager) GetBase64Key(path, fieldName string) (string, error) {
	data, err := s.GetKV2(path)
	if err != nil {
		return "", err
	}
	v, ok := data[fieldName].(string)
	if !ok {
		return "", fmt.Errorf("field %s missing or not a string at %s", fieldName, path)
	}
	return v, nil
}
