package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"relative/x", "relative/x"},
		{"~", home},
		{"~/captures/office", filepath.Join(home, "captures", "office")},
	}
	for _, tc := range cases {
		got, err := ExpandHome(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestEnsureDir_CreatesNested(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	got, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.True(t, PathExists(dir))
}

func TestPathExists_Missing(t *testing.T) {
	assert.False(t, PathExists(filepath.Join(t.TempDir(), "nope")))
}
