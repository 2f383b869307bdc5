package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{
		Output: &buf,
		Level:  slog.LevelInfo,
		Format: FormatJSON,
		Attrs:  []slog.Attr{slog.String("service", "explorer-points")},
	})

	log.Debug("hidden")
	log.Info("swept", Component("sweeper"), Latency(1500*time.Millisecond), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "swept", entry["msg"])
	assert.Equal(t, "explorer-points", entry["service"])
	assert.Equal(t, "sweeper", entry["component"])
	assert.Equal(t, "1.5s", entry["latency"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: slog.LevelDebug, Format: FormatText})
	log.Debug("award", StudentID("emma"), ClassroomID("c1"))

	assert.Contains(t, buf.String(), "student_id=emma")
	assert.Contains(t, buf.String(), "classroom_id=c1")
}

func TestContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	log := New(DefaultOptions())
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
}
