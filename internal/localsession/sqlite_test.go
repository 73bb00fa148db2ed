package localsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestKV(t *testing.T) *SQLiteKV {
	t.Helper()
	kv, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestSQLiteKV_GetAbsent(t *testing.T) {
	kv := openTestKV(t)

	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteKV_SetGetDelete(t *testing.T) {
	kv := openTestKV(t)

	require.NoError(t, kv.Set("k", "v1"))
	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	// Overwrite
	require.NoError(t, kv.Set("k", "v2"))
	v, ok, err = kv.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)

	require.NoError(t, kv.Delete("k"))
	_, ok, err = kv.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting an absent key is not an error.
	require.NoError(t, kv.Delete("k"))
}

func TestStore_OverSQLite(t *testing.T) {
	kv := openTestKV(t)
	s := NewStore(kv, 8*time.Hour)

	s.Save(testUser(), "access-token")

	got := s.Load()
	require.NotNil(t, got)
	require.Equal(t, "9999", got.ID)

	s.Clear()
	require.Nil(t, s.Load())
}
