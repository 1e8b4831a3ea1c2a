package channels

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptFeishuEnvelope(t *testing.T, encryptKey string, plaintext []byte) string {
	t.Helper()
	keySum := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(keySum[:])
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), make([]byte, pad)...)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	iv := make([]byte, aes.BlockSize)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(append(iv, ciphertext...))
}

func TestDecryptFeishuEnvelopeRoundTrip(t *testing.T) {
	key := "test_encrypt_key"
	plaintext := []byte(`{"type":"event_callback"}`)

	envelope := encryptFeishuEnvelope(t, key, plaintext)
	decrypted, err := DecryptFeishuEnvelope(key, envelope)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptFeishuEnvelopeWrongKeyFails(t *testing.T) {
	envelope := encryptFeishuEnvelope(t, "right-key", []byte(`{"a":1}`))
	decrypted, err := DecryptFeishuEnvelope("wrong-key", envelope)
	if err == nil {
		assert.NotEqual(t, []byte(`{"a":1}`), decrypted)
	}
}

func TestDecryptFeishuEnvelopeMalformedBase64(t *testing.T) {
	_, err := DecryptFeishuEnvelope("key", "not-valid-base64!!!")
	assert.Error(t, err)
}
