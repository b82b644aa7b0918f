package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewCreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	l.Info("hello")
	l.Debug("below level")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.NotContains(t, string(data), "below level")
}

func TestFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").With(String("ticker", "SPY"))
	l.Warn("window skipped", Int("window", 3), Float64("proba", 0.25), Bool("abstained", true),
		Strings("models", []string{"logreg", "rf"}), Duration("elapsed_ms", 1500*time.Millisecond))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "SPY", rec["ticker"])
	assert.Equal(t, float64(3), rec["window"])
	assert.Equal(t, 0.25, rec["proba"])
	assert.Equal(t, true, rec["abstained"])
	assert.Equal(t, []any{"logreg", "rf"}, rec["models"])
	assert.Equal(t, float64(1500), rec["elapsed_ms"])
	assert.Equal(t, "window skipped", rec["message"])
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error("ignored", Error(fmt.Errorf("boom"))) })
}

func TestCleanupOldKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		p := filepath.Join(dir, fmt.Sprintf("run_%d.log", i))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, ts, ts))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	removed, err := CleanupOld(dir, DefaultKeep)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "run_0.log"),
		filepath.Join(dir, "run_1.log"),
	}, removed)

	left, _ := filepath.Glob(filepath.Join(dir, "*.log"))
	assert.Len(t, left, 5)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestCleanupOldMissingDir(t *testing.T) {
	removed, err := CleanupOld(filepath.Join(t.TempDir(), "nope"), 5)
	assert.NoError(t, err)
	assert.Empty(t, removed)
}
