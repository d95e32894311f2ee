package dump

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Disabled(t *testing.T) {
	var nilStore *Store
	assert.False(t, nilStore.Enabled())
	assert.False(t, New("").Enabled())

	p, err := New("  ").WritePage("dmasti", "search", "x", []byte("a"))
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestStore_WritePage(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	p, err := s.WritePage("DMasti", "extract", "a1/b2", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dmasti", "extract", "20240102T030405.000000000-a1_b2.html"), p)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(b))
}

func TestStore_RejectsUnsafeSegments(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.WritePage("../etc", "search", "k", nil)
	assert.Error(t, err)
	_, err = s.WritePage("dmasti", "", "k", nil)
	assert.Error(t, err)
	_, err = s.WritePage("dmasti", "search", "///", nil)
	assert.Error(t, err)
}
