package savestate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saves.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("slot1", []byte("first")))
	blob, err := s.Load("slot1")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), blob)
}

func TestLoadReturnsNewestGeneration(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("slot1", []byte("v1")))
	require.NoError(t, s.Save("slot1", []byte("v2")))
	require.NoError(t, s.Save("slot1", []byte("v3")))

	blob, err := s.Load("slot1")
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), blob)
}

func TestLoadUnknownSlot(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load("nope")
	require.ErrorIs(t, err, ErrNoSuchSlot)
}

func TestSlotsListsEverySavedSlot(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("a", []byte("1")))
	require.NoError(t, s.Save("b", []byte("1")))

	names, err := s.Slots()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestSlotsAreIndependent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("a", []byte("a-data")))
	require.NoError(t, s.Save("b", []byte("b-data")))

	got, err := s.Load("a")
	require.NoError(t, err)
	require.Equal(t, []byte("a-data"), got)

	got, err = s.Load("b")
	require.NoError(t, err)
	require.Equal(t, []byte("b-data"), got)
}
