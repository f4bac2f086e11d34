package offsetcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorePutGetRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("T1", []byte("hello")))
	v, ok, err := s.Get("T1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(v))
}

func TestSQLiteStorePutOverwrites(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("T1", []byte("one")))
	require.NoError(t, s.Put("T1", []byte("two")))
	v, ok, err := s.Get("T1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(v))
}

func TestSQLiteStoreGetMissingKey(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStoreDeleteAndClear(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("T1", []byte("x")))
	require.NoError(t, s.Put("T2", []byte("y")))
	require.NoError(t, s.Delete("T1"))

	_, ok, _ := s.Get("T1")
	assert.False(t, ok)
	_, ok, _ = s.Get("T2")
	assert.True(t, ok)

	require.NoError(t, s.Clear())
	_, ok, _ = s.Get("T2")
	assert.False(t, ok)
}
