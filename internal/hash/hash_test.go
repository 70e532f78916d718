package hash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	got, err := File(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
	assert.Equal(t, Bytes([]byte("hello")), got)
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader_MatchesBytes(t *testing.T) {
	data := strings.Repeat("x", 100000)
	got, err := Reader(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Bytes([]byte(data)), got)
}
