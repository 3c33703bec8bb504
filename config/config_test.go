package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refkit.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, uint64(1<<16), cfg.Memory.RetireRingSize)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
listen = "127.0.0.1:9000"

[log]
level = "debug"
format = "json"

[memory]
block-limit = 128
retire-ring-size = 1024
epoch-interval = "500ms"

[broadcast]
driver = "sarama"
brokers = ["localhost:9092"]
topic = "lifecycle"
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, int64(128), cfg.Memory.BlockLimit)
	assert.Equal(t, uint64(1024), cfg.Memory.RetireRingSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Memory.EpochInterval.Duration)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broadcast.Brokers)
	// untouched sections keep defaults
	assert.Equal(t, Default().Journal, cfg.Journal)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"ring not power of two", "[memory]\nretire-ring-size = 1000\n"},
		{"negative limit", "[memory]\nblock-limit = -1\n"},
		{"driver without brokers", "[broadcast]\ndriver = \"kafka-go\"\n"},
		{"unknown driver", "[broadcast]\ndriver = \"nats\"\nbrokers = [\"x\"]\n"},
		{"unknown format", "[broadcast]\nformat = \"avro\"\n"},
		{"bad duration", "[memory]\nepoch-interval = \"soon\"\n"},
		{"bad toml", "[memory\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
