package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: InfoLevel, Format: "json", Service: "test-service", Output: &buf})

	log.Info("test message", StringField("test_key", "test_value"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "test message", entries[0]["msg"])
	assert.Equal(t, "test-service", entries[0]["service"])
	assert.Equal(t, "test_value", entries[0]["test_key"])
	assert.Equal(t, "info", entries[0]["level"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: WarnLevel, Output: &buf})

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestLoggerImmutability(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: InfoLevel, Output: &buf})
	child := base.WithFields(StringField("key1", "value1"))

	base.Info("from base")
	child.Info("from child")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	_, found := entries[0]["key1"]
	assert.False(t, found, "base logger must not see child fields")
	assert.Equal(t, "value1", entries[1]["key1"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name     string
		field    LogField
		expected LogField
	}{
		{"StringField", StringField("test", "value"), LogField{Key: "test", Value: "value"}},
		{"IntField", IntField("count", 42), LogField{Key: "count", Value: "42"}},
		{"DurationField", DurationField("duration", 5*time.Second), LogField{Key: "duration", Value: "5s"}},
		{"ErrorField", ErrorField(errors.New("boom")), LogField{Key: "error", Value: "boom"}},
		{"ErrorField nil", ErrorField(nil), LogField{Key: "error", Value: "<nil>"}},
		{"ExchangeIDField", ExchangeIDField("exg-1"), LogField{Key: "exchange_id", Value: "exg-1"}},
		{"SlotField", SlotField("user_input.txt"), LogField{Key: "slot", Value: "user_input.txt"}},
		{"Generic float", Field("ratio", 0.5), LogField{Key: "ratio", Value: "0.5"}},
		{"TimeField", TimeField("ts", time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)), LogField{Key: "ts", Value: "2023-01-01T12:00:00Z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.field)
		})
	}
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, id)

	_, again := EnsureCorrelationID(ctx)
	assert.Equal(t, id, again)
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: InfoLevel, Output: &buf})

	var seen string
	handler := log.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	t.Run("generates correlation id for invalid header", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set(CorrelationIDHeader, "not-a-uuid")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		_, err := uuid.Parse(seen)
		require.NoError(t, err)

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "HTTP request received", entries[0]["msg"])
		assert.Equal(t, "HTTP response sent", entries[1]["msg"])
		assert.Equal(t, "418", entries[1]["http_status"])
		assert.Equal(t, "15", entries[1]["response_bytes"])
		assert.Equal(t, seen, entries[1][CorrelationIDFieldKey])
	})

	t.Run("keeps valid correlation id", func(t *testing.T) {
		id := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationIDHeader, id)

		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, id, seen)
	})
}
