package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := SetupWithWriter(Settings{Level: LevelDebug, Format: FormatText}, &buf)
	require.NotNil(t, logger)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := SetupWithWriter(Settings{Level: LevelInfo, Format: FormatJSON}, &buf)
	require.NotNil(t, logger)

	logger.Info("test-msg")
	assert.Contains(t, buf.String(), `"msg":"test-msg"`)
}

func TestSetup_SetsDefault(t *testing.T) {
	logger := Setup(Settings{Level: LevelInfo, Format: FormatText})
	assert.Equal(t, logger.Handler(), slog.Default().Handler())
}

func TestSetup_ErrorLevelSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer

	logger := SetupWithWriter(Settings{Level: LevelError}, &buf)
	logger.Info("should-not-appear")
	logger.Error("should-appear")

	assert.NotContains(t, buf.String(), "should-not-appear")
	assert.Contains(t, buf.String(), "should-appear")
}

func TestSetup_DebugLevelShowsDebugMessages(t *testing.T) {
	var buf bytes.Buffer

	logger := SetupWithWriter(Settings{Level: LevelDebug, Format: FormatText}, &buf)
	logger.Debug("debug-msg")

	assert.Contains(t, buf.String(), "debug-msg")
}

func TestSetup_InfoLevelHidesDebugMessages(t *testing.T) {
	var buf bytes.Buffer

	logger := SetupWithWriter(Settings{Level: LevelInfo, Format: FormatText}, &buf)
	logger.Debug("debug-hidden")

	assert.NotContains(t, buf.String(), "debug-hidden")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestContext_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := NewContext(context.Background(), logger)
	got := FromContext(ctx)
	assert.Equal(t, logger, got)
}

func TestFromContext_FallbackToDefault(t *testing.T) {
	got := FromContext(context.Background())
	assert.Equal(t, slog.Default(), got)
}

func TestAttributes(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("export",
		ExportID("42"),
		Path("/tmp/out.ldif"),
		Policy("overwrite"),
		Layer("compress"),
		DN("uid=a,dc=example,dc=com"),
		Err(errors.New("boom")),
	)

	out := buf.String()
	assert.Contains(t, out, `"exportID":"42"`)
	assert.Contains(t, out, `"path":"/tmp/out.ldif"`)
	assert.Contains(t, out, `"policy":"overwrite"`)
	assert.Contains(t, out, `"layer":"compress"`)
	assert.Contains(t, out, `"dn":"uid=a,dc=example,dc=com"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, "", Err(nil).Value.String())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	require.NotNil(t, logger)
	logger.Error("dropped")
}
