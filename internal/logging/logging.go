// Package logging initialises a [log/slog] logger and provides context-based
// logger propagation plus the attribute helpers every export component logs
// with.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Level and format names.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatText = "text"
	FormatJSON = "json"
)

// Attribute keys.
const (
	KeyExportID = "exportID"
	KeyPath     = "path"
	KeyPolicy   = "policy"
	KeyLayer    = "layer"
	KeyDN       = "dn"
	KeyError    = "error"
)

// Settings selects the handler. Level is one of the Level* names; Format is
// FormatText or FormatJSON.
type Settings struct {
	Level  string
	Format string
}

type ctxKey struct{}

// Setup creates a *slog.Logger writing to stderr and installs it as the
// process-wide default via slog.SetDefault.
func Setup(s Settings) *slog.Logger {
	return SetupWithWriter(s, os.Stderr)
}

// SetupWithWriter creates a *slog.Logger writing to w and installs it as the
// process-wide default via slog.SetDefault. Use this variant in tests to
// capture or suppress log output.
func SetupWithWriter(s Settings, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(s.Level)}

	var handler slog.Handler

	switch s.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default: // text
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from ctx, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}

// ExportID tags records with the export run ID.
func ExportID(id string) slog.Attr { return slog.String(KeyExportID, id) }

// Path tags records with the export target.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Policy tags records with the conflict policy.
func Policy(p string) slog.Attr { return slog.String(KeyPolicy, p) }

// Layer tags records with a pipeline layer name.
func Layer(name string) slog.Attr { return slog.String(KeyLayer, name) }

// DN tags records with an entry DN.
func DN(dn string) slog.Attr { return slog.String(KeyDN, dn) }

// Err tags records with an error message.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}

	return slog.String(KeyError, err.Error())
}
