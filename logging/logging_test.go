package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestDebugfRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	t.Cleanup(func() { setLevel(LevelInfo) })

	setLevel(LevelInfo)
	Debugf("hidden %d", 1)
	assert.NotContains(t, buf.String(), "hidden")

	setLevel(LevelDebug)
	Debugf("visible %d", 2)
	assert.Contains(t, buf.String(), "Debug: visible 2")
}

func TestRotatingWriterKeepsOneBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)

	w := &RotatingWriter{file: f, path: path, maxSize: 32}
	defer w.Close()

	line := []byte(strings.Repeat("x", 24) + "\n")
	_, err = w.Write(line)
	require.NoError(t, err)

	// Second write pushes past maxSize and triggers the swap.
	_, err = w.Write(line)
	require.NoError(t, err)

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "xxx")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
