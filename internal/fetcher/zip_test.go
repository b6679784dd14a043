package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		if !strings.HasSuffix(name, "/") {
			_, err = fw.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIPSingle(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"dump/leak.csv": "email,password\n"})
	dest := t.TempDir()

	path, err := ExtractZIPSingle(zipPath, dest, "abc_", 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "abc_leak.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "email,password\n", string(data))
}

func TestExtractZIPSingle_IgnoresDirectories(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"dump/": "", "dump/leak.csv": "x"})
	path, err := ExtractZIPSingle(zipPath, t.TempDir(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "leak.csv", filepath.Base(path))
}

func TestExtractZIPSingle_Rejects(t *testing.T) {
	tests := map[string]map[string]string{
		"multiple files": {"a.csv": "1", "b.csv": "2"},
		"empty archive":  {},
		"only dirs":      {"a/": ""},
		"zip slip":       {"../../evil.csv": "x"},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ExtractZIPSingle(createTestZIP(t, files), t.TempDir(), "", 0)
			require.Error(t, err)
		})
	}
}

func TestExtractZIPSingle_DotsInNameAllowed(t *testing.T) {
	path, err := ExtractZIPSingle(createTestZIP(t, map[string]string{"leak..2024.csv": "x"}), t.TempDir(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "leak..2024.csv", filepath.Base(path))
}

func TestExtractZIPSingle_TooLarge(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"big.csv": strings.Repeat("x", 100)})
	dest := t.TempDir()
	_, err := ExtractZIPSingle(zipPath, dest, "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than")

	entries, _ := os.ReadDir(dest)
	assert.Empty(t, entries)
}

func TestExtractZIPSingle_InvalidArchive(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0o644))
	_, err := ExtractZIPSingle(bad, t.TempDir(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open archive")
}
