package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSecretsPath is where mounted secret files are looked up
const DefaultSecretsPath = "/var/secrets"

// FileProvider retrieves secrets from mounted files, one file per key
// Example: /var/secrets/claude-api-key, /var/secrets/db-dsn
type FileProvider struct {
	secretsPath string
}

// NewFileProvider creates a new file-based secret provider for the
// directory secretsPath
func NewFileProvider(secretsPath string) *FileProvider {
	return &FileProvider{
		secretsPath: secretsPath,
	}
}

// GetSecret retrieves a secret from a file
// The key is converted to a filename by replacing underscores with hyphens and lowercasing
// Example: CLAUDE_API_KEY -> claude-api-key
func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if f.secretsPath == "" {
		return "", fmt.Errorf("secrets path not configured")
	}

	path := filepath.Join(f.secretsPath, SecretFileName(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// SecretFileName maps a config key to its secret file name:
// DB_DSN -> db-dsn
func SecretFileName(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", "-"))
}

// Name returns the provider name
func (f *FileProvider) Name() string {
	return "file"
}

// IsAvailable checks if the secrets directory exists
func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	if f.secretsPath == "" {
		return false
	}

	info, err := os.Stat(f.secretsPath)
	if err != nil {
		return false
	}

	return info.IsDir()
}
