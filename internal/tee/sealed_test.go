package tee

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealedStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewSealedStore(dir, "safeclaw", nil)

	require.NoError(t, store.Seal("greeting", []byte("hello world")))
	assert.True(t, store.Exists("greeting"))

	plain, err := store.Unseal("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(plain))
}

func TestSealedStoreMissingEntry(t *testing.T) {
	dir := t.TempDir()
	store := NewSealedStore(dir, "safeclaw", nil)

	_, err := store.Unseal("nope")
	assert.Error(t, err)
}

func TestSealedStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewSealedStore(dir, "safeclaw", nil)
	require.NoError(t, store.Seal("x", []byte("data")))

	require.NoError(t, store.Delete("x"))
	assert.False(t, store.Exists("x"))
}

func TestSealedStoreWrongKeyFailsAuthenticity(t *testing.T) {
	dir := t.TempDir()
	store := NewSealedStore(dir, "safeclaw", nil)
	require.NoError(t, store.Seal("x", []byte("data")))

	other := NewSealedStore(t.TempDir(), "safeclaw", nil)
	// copy the ciphertext file into the other store's directory but keep
	// its own freshly generated key — decrypting with the wrong key must
	// fail authenticity, not silently return garbage.
	data, err := os.ReadFile(store.pathFor("x"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(other.dir, 0700))
	require.NoError(t, os.WriteFile(other.pathFor("x"), data, 0600))

	_, err = other.Unseal("x")
	assert.Error(t, err)
}

func TestSafeNameSanitizesPathCharacters(t *testing.T) {
	assert.Equal(t, "a_b_c", safeName("a/b\\c"))
	assert.Equal(t, "normal-name.v1", safeName("normal-name.v1"))
}
