package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLogLine(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.Local)

	line := formatLogLine(logEvent{
		at:        at,
		level:     logLevelInfo,
		component: string(detectorLog),
		msg:       "new block",
		attrs:     []any{"height", 1500, "url", "http://pool example"},
	})
	assert.Equal(t, "2026-03-01 12:30:45.123 [INFO] detector: new block height=1500 url=\"http://pool example\"\n", line)

	line = formatLogLine(logEvent{at: at, level: logLevelWarn, msg: "odd", attrs: []any{"dangling"}})
	assert.Equal(t, "2026-03-01 12:30:45.123 [WARN] odd dangling\n", line)
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", logLevelDebug.String())
	assert.Equal(t, "ERROR", logLevelError.String())
	assert.Equal(t, "UNKNOWN", logLevel(42).String())
}

func TestRollingFileWriterRecreatesMovedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner.log")
	w := newRollingFileWriter(path).(*rollingFileWriter)
	t.Cleanup(func() { _ = w.Close() })

	_, err := w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, os.Rename(path, path+".1"))

	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))
	old, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(old))
}
