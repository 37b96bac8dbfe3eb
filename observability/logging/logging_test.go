package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := Setup("stakectl", "test", Options{Output: &buf, Level: slog.LevelDebug})
	defer closeFn()

	logger.Debug("deposit committed", slog.String("component", "staking"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "deposit committed", line["message"])
	require.Equal(t, "stakectl", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.log")
	var buf bytes.Buffer
	logger, closeFn := Setup("stakectl", "", Options{Output: &buf, File: path, MaxSizeMB: 1})
	logger.Info("hello")
	require.NoError(t, closeFn())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"message":"hello"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestMaskValue(t *testing.T) {
	require.Equal(t, RedactedValue, MaskValue("Bearer abc"))
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, "  ", MaskValue("  "))
}

func TestMaskHeaders(t *testing.T) {
	attr := MaskHeaders(map[string]string{"x-key": "secret", "tenant": "", "authorization": "Bearer abc"})
	require.Equal(t, "headers", attr.Key)
	group := attr.Value.Group()
	require.Len(t, group, 3)
	require.Equal(t, "authorization", group[0].Key)
	require.Equal(t, RedactedValue, group[0].Value.String())
	require.Equal(t, "tenant", group[1].Key)
	require.Equal(t, "", group[1].Value.String())
	require.Equal(t, RedactedValue, group[2].Value.String())
}
