package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pnl.log")
	cfg := DefaultConfig()
	cfg.LogFile = path
	cfg.Quiet = true

	l, err := New(cfg)
	require.NoError(t, err)

	l.WithWallet("wallet-1").Info("ingest done")
	l.LogError("store failed", errors.New("boom"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "ingest done", first["msg"])
	assert.Equal(t, "wallet-1", first["wallet"])
	assert.Equal(t, "INFO", first["level"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second["error"])
}

func TestDebugOnlyInDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		wantLines   int
	}{
		{name: "production", development: false, wantLines: 0},
		{name: "development", development: true, wantLines: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pnl.log")
			l, err := New(&Config{LogFile: path, MaxSize: 1, Development: tt.development, Quiet: true})
			require.NoError(t, err)

			end := l.TrackPerformance("ingest")
			end()
			require.NoError(t, l.Sync())

			data, _ := os.ReadFile(path)
			content := strings.TrimSpace(string(data))
			if tt.wantLines == 0 {
				assert.Empty(t, content)
				return
			}
			lines := strings.Split(content, "\n")
			assert.Len(t, lines, tt.wantLines)
			assert.Contains(t, lines[1], "correlation_id")
		})
	}
}

func TestContextHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithRun(base, "run-1").Info("batch committed")
	WithComponent(base, "metrics_server").Info("listening")

	entries := logs.All()
	require.Len(t, entries, 2)

	runFields := entries[0].ContextMap()
	assert.Equal(t, "run-1", runFields["run_id"])
	assert.Contains(t, runFields, "run_time")
	assert.Equal(t, "metrics_server", entries[1].ContextMap()["component"])
}
