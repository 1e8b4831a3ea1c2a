package channels

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// DecryptFeishuEnvelope decrypts a Feishu encrypted event callback:
// AES-256-CBC with key = SHA-256(encryptKey), iv = first 16 bytes of the
// ciphertext, PKCS7-padded plaintext holding the JSON event body.
func DecryptFeishuEnvelope(encryptKey, encryptedB64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		return nil, err
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, errors.New("feishu envelope: invalid ciphertext length")
	}

	keySum := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(keySum[:])
	if err != nil {
		return nil, err
	}

	iv := raw[:aes.BlockSize]
	ciphertext := raw[aes.BlockSize:]
	if len(ciphertext) == 0 {
		return nil, errors.New("feishu envelope: empty ciphertext")
	}

	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, errors.New("feishu envelope: empty plaintext")
	}
	pad := int(data[n-1])
	if pad <= 0 || pad > aes.BlockSize || pad > n {
		return nil, errors.New("feishu envelope: invalid padding")
	}
	if !bytes.Equal(data[n-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, errors.New("feishu envelope: invalid padding")
	}
	return data[:n-pad], nil
}
