package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyFileRotatesBySizeAndDay(t *testing.T) {
	dir := t.TempDir()
	f, err := openDailyFile(dir, 10, 0)
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }
	require.NoError(t, f.open("2024-03-01"))

	_, err = f.Write([]byte("12345678"))
	require.NoError(t, err)
	_, err = f.Write([]byte("abcdefgh"))
	require.NoError(t, err)

	files, _ := filepath.Glob(filepath.Join(dir, "adms-2024-03-01*.log"))
	assert.Len(t, files, 2)
	current, err := os.ReadFile(filepath.Join(dir, "adms-2024-03-01.log"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(current))

	now = now.Add(24 * time.Hour)
	_, err = f.Write([]byte("next day"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "adms-2024-03-02.log"))
}
