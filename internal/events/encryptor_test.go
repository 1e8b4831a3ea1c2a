package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyFromByte(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestEncryptorRoundTrip(t *testing.T) {
	enc := NewAESGCMEncryptor()
	require.NoError(t, enc.AddKey("key-a", keyFromByte(0x01)))

	payload := map[string]any{"ssn": "123-45-6789", "nested": map[string]any{"x": float64(1)}}
	envelope, err := enc.Encrypt(payload)
	require.NoError(t, err)
	assert.True(t, envelope.Encrypted)
	assert.Equal(t, "key-a", envelope.KeyID)

	decrypted, err := enc.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, payload["ssn"], decrypted.(map[string]any)["ssn"])
}

func TestEncryptorUniqueNoncePerEncryption(t *testing.T) {
	enc := NewAESGCMEncryptor()
	require.NoError(t, enc.AddKey("key-a", keyFromByte(0x02)))

	e1, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)
	e2, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, e1.Nonce, e2.Nonce)
	assert.NotEqual(t, e1.Ciphertext, e2.Ciphertext)
}

func TestEncryptorRotation(t *testing.T) {
	enc := NewAESGCMEncryptor()
	require.NoError(t, enc.AddKey("key-a", keyFromByte(0x03)))
	require.NoError(t, enc.AddKey("key-b", keyFromByte(0x04)))

	before, err := enc.Encrypt("P")
	require.NoError(t, err)

	require.NoError(t, enc.RotateTo("key-b"))
	after, err := enc.Encrypt("P")
	require.NoError(t, err)

	assert.NotEqual(t, before.KeyID, after.KeyID)

	d1, err := enc.Decrypt(before)
	require.NoError(t, err)
	d2, err := enc.Decrypt(after)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestEncryptorRotateToUnknownKeyFails(t *testing.T) {
	enc := NewAESGCMEncryptor()
	require.NoError(t, enc.AddKey("key-a", keyFromByte(0x05)))
	err := enc.RotateTo("ghost")
	assert.Error(t, err)
}

func TestEncryptorDecryptMissingKeyFails(t *testing.T) {
	enc := NewAESGCMEncryptor()
	require.NoError(t, enc.AddKey("key-a", keyFromByte(0x06)))
	envelope, err := enc.Encrypt("hello")
	require.NoError(t, err)

	other := NewAESGCMEncryptor()
	_, err = other.Decrypt(envelope)
	assert.Error(t, err)
}

func TestEncryptorKeyIDs(t *testing.T) {
	enc := NewAESGCMEncryptor()
	require.NoError(t, enc.AddKey("a", keyFromByte(1)))
	require.NoError(t, enc.AddKey("b", keyFromByte(2)))
	ids := enc.KeyIDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "b")
}

func TestEncryptNoActiveKeyFails(t *testing.T) {
	enc := NewAESGCMEncryptor()
	_, err := enc.Encrypt("x")
	assert.Error(t, err)
}
