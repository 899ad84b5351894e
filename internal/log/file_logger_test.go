package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationLoggerWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	ol := NewOperationLogger(dir, 3)
	defer ol.Close()

	require.NoError(t, ol.WriteLog("proxy.bulk-delete", "第一行"))
	require.NoError(t, ol.WriteLog("proxy.bulk-delete", "第二行\n续行"))
	require.NoError(t, ol.WriteLog("proxy.bulk-delete", ""))

	entries, err := ol.ReadRecentLogs("proxy.bulk-delete", 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	contents := []string{entries[0].Content, entries[1].Content}
	assert.ElementsMatch(t, []string{"第一行", "第二行 续行"}, contents)

	limited, err := ol.ReadRecentLogs("proxy.bulk-delete", 1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := ol.ReadRecentLogs("group.create", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOperationLoggerSanitizesKind(t *testing.T) {
	dir := t.TempDir()
	ol := NewOperationLogger(dir, 3)
	defer ol.Close()

	require.NoError(t, ol.WriteLog("../escape", "x"))
	matches, err := filepath.Glob(filepath.Join(dir, "*", "*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, dir, filepath.Dir(filepath.Dir(matches[0])))
}

func TestOperationLoggerCleanup(t *testing.T) {
	dir := t.TempDir()
	ol := NewOperationLogger(dir, 3)
	defer ol.Close()

	old := filepath.Join(dir, "server.delete", "2000-01-01.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(old), 0755))
	require.NoError(t, os.WriteFile(old, []byte("[2000-01-01 00:00:00] x\n"), 0644))
	require.NoError(t, ol.WriteLog("server.delete", "今天"))

	ol.TriggerCleanup()

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	entries, err := ol.ReadRecentLogs("server.delete", 1, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSetLogLevel(t *testing.T) {
	defer SetLogLevel("info")

	require.NoError(t, SetLogLevel("DEBUG"))
	assert.Equal(t, "debug", GetLogLevel())
	assert.Error(t, SetLogLevel("verbose"))
}
