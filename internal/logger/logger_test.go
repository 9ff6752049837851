package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitDisabledDiscards(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Init(Options{Enabled: false, Writer: &out}))
	Info("ignored", "k", 1)
	require.Zero(t, out.Len())
}

func TestInitWriterLevel(t *testing.T) {
	t.Cleanup(func() { _ = Init(Options{}) })

	var out bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Writer: &out, Level: slog.LevelInfo}))

	Debug("hidden")
	Info("block added", "blocks", 4)
	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, out.String(), "block added")
	require.Contains(t, out.String(), "blocks=4")
}

func TestInitJSON(t *testing.T) {
	t.Cleanup(func() { _ = Init(Options{}) })

	var out bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Writer: &out, JSON: true}))
	Warn("tier", "name", "capacity")
	require.Contains(t, out.String(), `"msg":"tier"`)
	require.Contains(t, out.String(), `"name":"capacity"`)
}

func TestInitLogDirCleansOldLogs(t *testing.T) {
	t.Cleanup(func() { _ = Init(Options{}) })

	dir := t.TempDir()
	old := filepath.Join(dir, logPrefix+time.Now().AddDate(0, 0, -(retentionDays+5)).Format("2006-01-02")+logSuffix)
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	keep := filepath.Join(dir, "unrelated.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	require.NoError(t, Init(Options{Enabled: true, LogDir: dir}))
	Info("hello")

	_, err := os.Stat(old)
	require.True(t, os.IsNotExist(err), "old log should be removed")
	_, err = os.Stat(keep)
	require.NoError(t, err)

	today := filepath.Join(dir, logPrefix+time.Now().Format("2006-01-02")+logSuffix)
	_, err = os.Stat(today)
	require.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}
