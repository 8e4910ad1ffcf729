package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestNewSetsGlobalLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := New(&config.Config{Env: "staging", LogLevel: "warn", LogFormat: "json"})
	require.NotNil(t, l)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "development")

	l.Component("execution").
		WithStep(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)).
		WithFields(map[string]interface{}{"instrument": "510300.SH", "amount": 1200}).
		WithError(errors.New("untradable")).
		Warn("order skipped")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "development", entry["env"])
	assert.Equal(t, "execution", entry["component"])
	assert.Equal(t, "2024-03-04", entry["step"])
	assert.Equal(t, "510300.SH", entry["instrument"])
	assert.Equal(t, float64(1200), entry["amount"])
	assert.Equal(t, "untradable", entry["error"])
	assert.Equal(t, "order skipped", entry["message"])
}

func TestNopDiscards(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.WithField("k", "v").Infof("value %d", 1)
		l.Error("nothing")
	})
}
