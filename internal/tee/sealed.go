package tee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
)

const (
	sealedKeySize   = 32
	sealedNonceSize = 12
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SealedStore is per-user file-backed sealed storage, AES-256-GCM, keyed
// either by a hardware-derived key (when the runtime is TEE-active) or a
// per-user key file generated on first use.
type SealedStore struct {
	dir     string
	keyPath string
	runtime *Runtime

	mu     sync.Mutex
	gcm    cipher.AEAD
	loaded bool
}

// NewSealedStore roots sealed storage at <home>/.<brand>/sealed with the
// fallback key file at <home>/.<brand>/sealed.key, per spec §6.
func NewSealedStore(homeDir, brand string, runtime *Runtime) *SealedStore {
	base := filepath.Join(homeDir, "."+brand)
	return &SealedStore{
		dir:     filepath.Join(base, "sealed"),
		keyPath: filepath.Join(base, "sealed.key"),
		runtime: runtime,
	}
}

func (s *SealedStore) ensureCipher() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	key, err := s.loadOrDeriveKey()
	if err != nil {
		return errs.Wrap(errs.KindTee, "sealed storage key unavailable", err)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return errs.Wrap(errs.KindTee, "sealed storage cipher init failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return errs.Wrap(errs.KindTee, "sealed storage gcm init failed", err)
	}

	s.gcm = gcm
	s.loaded = true
	return nil
}

// loadOrDeriveKey returns the hardware-derived key when the runtime is
// TEE-active, else the per-user key file (generated on first use).
func (s *SealedStore) loadOrDeriveKey() ([sealedKeySize]byte, error) {
	var key [sealedKeySize]byte

	if s.runtime != nil && s.runtime.IsTeeActive() {
		derived, err := deriveHardwareKey()
		if err == nil {
			copy(key[:], derived)
			return key, nil
		}
		// fall through to the file-backed key on derivation failure —
		// detection never fails the whole store, only this key source.
	}

	return s.loadOrCreateKeyFile()
}

func (s *SealedStore) loadOrCreateKeyFile() ([sealedKeySize]byte, error) {
	var key [sealedKeySize]byte

	data, err := os.ReadFile(s.keyPath)
	if err == nil && len(data) == sealedKeySize {
		copy(key[:], data)
		return key, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		return key, err
	}
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	if err := os.WriteFile(s.keyPath, key[:], 0600); err != nil {
		return key, err
	}
	return key, nil
}

// deriveHardwareKey derives sealed-storage key material from the TEE's
// hardware identity (SNP_GET_DERIVED_KEY bound to root key + measurement
// + guest policy) via HKDF over a device-specific secret. The ioctl call
// itself lives in attestation_linux.go; this expands its raw output to the
// cipher's key size.
func deriveHardwareKey() ([]byte, error) {
	raw, err := getDerivedKeyFromDevice()
	if err != nil {
		return nil, err
	}
	hk := hkdf.New(sha256.New, raw, nil, []byte("safeclaw-gateway-sealed-storage"))
	key := make([]byte, sealedKeySize)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

func safeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

func (s *SealedStore) pathFor(name string) string {
	return filepath.Join(s.dir, safeName(name))
}

// Seal encrypts plaintext and writes it to name's file as nonce ∥ ciphertext.
func (s *SealedStore) Seal(name string, plaintext []byte) error {
	if err := s.ensureCipher(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return errs.Wrap(errs.KindTee, "sealed storage directory unavailable", err)
	}

	nonce := make([]byte, sealedNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return errs.Wrap(errs.KindTee, "sealed storage nonce generation failed", err)
	}

	s.mu.Lock()
	sealed := s.gcm.Seal(nil, nonce, plaintext, nil)
	s.mu.Unlock()

	out := append(nonce, sealed...)
	if err := os.WriteFile(s.pathFor(name), out, 0600); err != nil {
		return errs.Wrap(errs.KindTee, "sealed storage write failed", err)
	}
	return nil
}

// Unseal decrypts name's file. A wrong key (or tampered ciphertext) fails
// with an authenticity error, not a generic one.
func (s *SealedStore) Unseal(name string) ([]byte, error) {
	if err := s.ensureCipher(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.KindNotFound, "sealed entry not found: "+name)
		}
		return nil, errs.Wrap(errs.KindTee, "sealed storage read failed", err)
	}
	if len(data) < sealedNonceSize {
		return nil, errs.New(errs.KindTee, "sealed entry truncated: "+name)
	}

	nonce, ciphertext := data[:sealedNonceSize], data[sealedNonceSize:]

	s.mu.Lock()
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, errs.Wrap(errs.KindTee, "sealed entry authenticity check failed", err)
	}
	return plaintext, nil
}

func (s *SealedStore) Exists(name string) bool {
	_, err := os.Stat(s.pathFor(name))
	return err == nil
}

func (s *SealedStore) Delete(name string) error {
	err := os.Remove(s.pathFor(name))
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindTee, "sealed entry delete failed", err)
	}
	return nil
}

var errNoDerivedKeySupport = errors.New("hardware key derivation unavailable on this runtime")
