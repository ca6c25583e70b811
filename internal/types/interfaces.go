package types

// Logger is the structured logger handed to channel transports and metric
// sinks. internal/app backs it with *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
