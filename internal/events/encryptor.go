package events

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"sync"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
)

// Encryptor is the AEAD envelope boundary: encrypt() always draws a fresh
// nonce, decrypt() looks the cipher up by the envelope's own keyId so old
// keys stay usable after rotation.
type Encryptor interface {
	Encrypt(payload any) (EncryptedPayload, error)
	Decrypt(envelope EncryptedPayload) (any, error)
	AddKey(keyID string, key [32]byte) error
	RotateTo(keyID string) error
	ActiveKeyID() (string, bool)
	KeyIDs() []string
}

// AESGCMEncryptor is the one Encryptor implementation: AES-256-GCM, 256-bit
// keys, 96-bit random nonces. Failures never leak which step failed —
// every error surfaces as errs.KindConfig per spec §4.4/§7.
type AESGCMEncryptor struct {
	mu          sync.RWMutex
	activeKeyID string
	ciphers     map[string]cipher.AEAD
}

func NewAESGCMEncryptor() *AESGCMEncryptor {
	return &AESGCMEncryptor{ciphers: make(map[string]cipher.AEAD)}
}

func (e *AESGCMEncryptor) AddKey(keyID string, key [32]byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return errs.Wrap(errs.KindConfig, "failed to build cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "failed to build AEAD", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ciphers[keyID] = gcm
	if e.activeKeyID == "" {
		e.activeKeyID = keyID
	}
	return nil
}

func (e *AESGCMEncryptor) RotateTo(keyID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ciphers[keyID]; !ok {
		return errs.New(errs.KindConfig, "cannot rotate to an unregistered key")
	}
	e.activeKeyID = keyID
	return nil
}

func (e *AESGCMEncryptor) ActiveKeyID() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeKeyID, e.activeKeyID != ""
}

func (e *AESGCMEncryptor) KeyIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.ciphers))
	for id := range e.ciphers {
		ids = append(ids, id)
	}
	return ids
}

func (e *AESGCMEncryptor) Encrypt(payload any) (EncryptedPayload, error) {
	e.mu.RLock()
	keyID := e.activeKeyID
	gcm, ok := e.ciphers[keyID]
	e.mu.RUnlock()
	if keyID == "" || !ok {
		return EncryptedPayload{}, errs.New(errs.KindConfig, "no active encryption key")
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return EncryptedPayload{}, errs.New(errs.KindConfig, "failed to serialize payload")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedPayload{}, errs.New(errs.KindConfig, "failed to generate nonce")
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return EncryptedPayload{
		KeyID:      keyID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Encrypted:  true,
	}, nil
}

func (e *AESGCMEncryptor) Decrypt(envelope EncryptedPayload) (any, error) {
	e.mu.RLock()
	gcm, ok := e.ciphers[envelope.KeyID]
	e.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindConfig, "unknown decryption key")
	}

	nonce, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "malformed envelope nonce")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "malformed envelope ciphertext")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "decryption failed")
	}

	var payload any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, errs.New(errs.KindConfig, "failed to deserialize payload")
	}
	return payload, nil
}

// IsEncryptedEnvelope reports whether raw (an EncryptedPayload value, as
// the in-memory provider delivers it, or an Event.Payload round-tripped
// through JSON as map[string]any) is an EncryptedPayload envelope,
// detected by its "encrypted" marker.
func IsEncryptedEnvelope(raw any) (EncryptedPayload, bool) {
	if p, ok := raw.(EncryptedPayload); ok {
		return p, p.Encrypted
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return EncryptedPayload{}, false
	}
	encrypted, _ := m["encrypted"].(bool)
	if !encrypted {
		return EncryptedPayload{}, false
	}
	keyID, _ := m["keyId"].(string)
	nonce, _ := m["nonce"].(string)
	ciphertext, _ := m["ciphertext"].(string)
	return EncryptedPayload{KeyID: keyID, Nonce: nonce, Ciphertext: ciphertext, Encrypted: true}, true
}
