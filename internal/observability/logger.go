package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a structured logger tagged with the component name.
func NewLogger(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler).With("component", component)
}
