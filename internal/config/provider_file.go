package config

import (
	"context"
	"os"
	"strings"
)

// FileSecretProvider implements SecretProvider by reading each key as a file
// path, the way container orchestrators mount secrets. Trailing newlines are
// trimmed; unreadable files are omitted from the result.
type FileSecretProvider struct {
	readFile func(string) ([]byte, error)
}

// NewFileSecretProvider creates a FileSecretProvider backed by os.ReadFile.
func NewFileSecretProvider() *FileSecretProvider {
	return &FileSecretProvider{readFile: os.ReadFile}
}

// GetParametersBatch reads every path in keys. The context is checked
// between reads so a slow mount cannot stall startup past the deadline.
func (p *FileSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := p.readFile(key)
		if err != nil {
			continue
		}
		result[key] = strings.TrimRight(string(data), "\r\n")
	}
	return result, nil
}
