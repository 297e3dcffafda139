package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hestia-iot/ntnrelay/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	a := NewZerologAdapterWithLogger(zerolog.New(&buf)).With("uplink")

	a.Warn("uplink send failed",
		ports.String("id", "abc"),
		ports.Int("attempts", 2),
		ports.Bool("rejected", false),
		ports.Duration("duration", time.Second),
		ports.Err(errors.New("no response")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "uplink", entry["component"])
	assert.Equal(t, "abc", entry["id"])
	assert.Equal(t, 2.0, entry["attempts"])
	assert.Equal(t, "no response", entry["error"])
}

func TestNew_RotatingFile(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	path := filepath.Join(t.TempDir(), "ntnrelay.log")
	logger, err := New(Options{Level: "debug", File: path, MaxSizeMB: 1, MaxBackups: 10})
	require.NoError(t, err)

	logger.Debug().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
