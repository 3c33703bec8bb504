package logutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		level   zapcore.Level
		wantErr bool
	}{
		{name: "defaults", cfg: LogConfig{}, level: zapcore.InfoLevel},
		{name: "debug console", cfg: LogConfig{Level: "debug", Format: "console"}, level: zapcore.DebugLevel},
		{name: "json warn", cfg: LogConfig{Level: "WARN", Format: "json"}, level: zapcore.WarnLevel},
		{name: "bad level", cfg: LogConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: LogConfig{Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.level))
			if tt.level > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.level-1))
			}
		})
	}
}
