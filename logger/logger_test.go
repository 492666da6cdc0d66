package logger

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestEntryRendersSortedFields(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: INFO, writers: []io.Writer{&buf}}
	entry := &LogEntry{fields: map[string]interface{}{"sn": "ABC", "device_id": 3}, logger: l}

	entry.With("tenant_id", 9).Warn("device %s", "lookup failed")

	line := buf.String()
	assert.Contains(t, line, "[WARN]")
	assert.True(t, strings.HasSuffix(line, "device lookup failed | device_id=3, sn=ABC, tenant_id=9\n"), line)
}

func TestEntryRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: WARN, writers: []io.Writer{&buf}}
	entry := &LogEntry{fields: map[string]interface{}{"k": "v"}, logger: l}

	entry.Info("hidden")
	assert.Empty(t, buf.String())

	entry.Error("shown")
	assert.Contains(t, buf.String(), "shown | k=v")
}
