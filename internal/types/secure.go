package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a channel credential: gateway token, SMTP password,
// bot token or portal password. Every rendering path (fmt verbs, JSON and
// slog attributes) prints the placeholder instead of the value.
type SecretString string

func (s SecretString) String() string   { return redactedPlaceholder }
func (s SecretString) GoString() string { return `types.SecretString("` + redactedPlaceholder + `")` }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// LogValue keeps the value out of slog output, including attributes built
// with slog.Any.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw value for the transport that needs it.
func (s SecretString) Unmask() string { return string(s) }

// IsSet reports whether a value was configured.
func (s SecretString) IsSet() bool { return s != "" }
