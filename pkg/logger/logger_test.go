package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	l := Nop()

	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		"INFO":    log.InfoLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"bogus":   log.InfoLevel,
	}
	for in, want := range tests {
		l.SetLogLevel(in)
		assert.Equal(t, want, l.GetLevel(), in)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxied.log")
	l := New(Config{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	t.Cleanup(func() { _ = l.Close() })

	l.With("component", "test").Info("route built", "route", "r1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"route":"r1"`)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Same(t, l, GetLogger())
}
