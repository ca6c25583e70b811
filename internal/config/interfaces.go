package config

import "context"

// SecretProvider resolves secret pointers (file paths for *_FILE variables)
// into plaintext values. Implementations omit keys they cannot resolve
// instead of failing the whole batch; the loader reports the gaps.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
