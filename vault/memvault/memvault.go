// Package memvault implements an in-memory, non-persistent vault.Provider.
// It is the only concrete crypto provider shipped with this module, modeled
// on the teacher's crypto package: NaCl/Curve25519 keys (crypto/keypair.go),
// Ed25519 signing (crypto/ed25519.go), secure wipe on destroy
// (crypto/secure_memory.go), and logrus instrumentation throughout.
package memvault

import (
	stded25519 "crypto/ed25519"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/channelmgr/vault"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

type keyKind uint8

const (
	kindDH keyKind = iota
	kindAEAD
)

type keyEntry struct {
	kind keyKind
	raw  [32]byte
}

// Vault is a software-only key store. All keys live in process memory and
// are lost on restart; nothing here is persisted, matching spec.md's
// non-goal of no cross-restart persistence.
type Vault struct {
	mu     sync.Mutex
	keys   map[uint64]*keyEntry
	nextID uint64
	logger *logrus.Entry
}

// New creates an empty in-memory vault.
func New() *Vault {
	return &Vault{
		keys:   make(map[uint64]*keyEntry),
		logger: logrus.WithField("component", "memvault"),
	}
}

var _ vault.Provider = (*Vault)(nil)

// RandomBytes returns n bytes read from crypto/rand.
func (v *Vault) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := cryptorand.Read(buf); err != nil {
		v.logger.WithError(err).Error("random byte generation failed")
		return nil, fmt.Errorf("memvault: random bytes: %w", err)
	}
	return buf, nil
}

// SHA256 computes the SHA-256 digest of data.
func (v *Vault) SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (v *Vault) store(kind keyKind, raw [32]byte) vault.KeyHandle {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := v.nextID
	v.keys[id] = &keyEntry{kind: kind, raw: raw}
	return vault.NewKeyHandle(id)
}

// NewSecretKey generates a fresh Curve25519/Ed25519-compatible secret seed.
// The seed is stored unclamped; clamping is applied transiently wherever a
// Curve25519 scalar is required (PublicKey, ECDH), so the same handle can
// also be used as an Ed25519 signing seed via Sign.
func (v *Vault) NewSecretKey() (vault.KeyHandle, error) {
	var raw [32]byte
	if _, err := cryptorand.Read(raw[:]); err != nil {
		return vault.NoKey, fmt.Errorf("memvault: generate secret key: %w", err)
	}
	h := v.store(kindDH, raw)
	v.logger.WithField("handle", h.ID()).Debug("generated new secret key")
	return h, nil
}

// ImportSecretKey installs a caller-supplied 32-byte secret seed.
func (v *Vault) ImportSecretKey(raw []byte) (vault.KeyHandle, error) {
	if len(raw) != 32 {
		return vault.NoKey, vault.ErrInvalidKeyLength
	}
	var arr [32]byte
	copy(arr[:], raw)
	h := v.store(kindDH, arr)
	v.logger.WithField("handle", h.ID()).Debug("imported secret key")
	return h, nil
}

// ImportAEADKey installs a caller-supplied symmetric AEAD key.
func (v *Vault) ImportAEADKey(raw []byte) (vault.KeyHandle, error) {
	if len(raw) != 32 {
		return vault.NoKey, vault.ErrInvalidKeyLength
	}
	var arr [32]byte
	copy(arr[:], raw)
	h := v.store(kindAEAD, arr)
	v.logger.WithField("handle", h.ID()).Debug("imported AEAD key")
	return h, nil
}

// ExportSecretKey returns the raw 32-byte seed behind a DH key handle, for
// handing an identity key to a handshake engine that needs to run its own
// internal Diffie-Hellman math (kex.XX wrapping flynn/noise). Everyday
// callers should use ECDH/HKDF/Sign instead.
func (v *Vault) ExportSecretKey(h vault.KeyHandle) ([]byte, error) {
	entry, err := v.lookup(h, kindDH)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 32)
	copy(out, entry.raw[:])
	return out, nil
}

// PublicKey returns the Curve25519 public key for a DH secret key handle.
func (v *Vault) PublicKey(h vault.KeyHandle) ([]byte, error) {
	entry, err := v.lookup(h, kindDH)
	if err != nil {
		return nil, err
	}
	scalar := entry.raw
	clamp(&scalar)
	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("memvault: derive public key: %w", err)
	}
	return pub, nil
}

// DestroySecretKey removes and wipes a key entry.
func (v *Vault) DestroySecretKey(h vault.KeyHandle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.keys[h.ID()]
	if !ok {
		return vault.ErrKeyNotFound
	}
	subtle.ConstantTimeCopy(1, entry.raw[:], make([]byte, 32))
	delete(v.keys, h.ID())
	return nil
}

// ECDH computes the Curve25519 shared secret for a DH key handle.
func (v *Vault) ECDH(priv vault.KeyHandle, peerPublic []byte) ([]byte, error) {
	entry, err := v.lookup(priv, kindDH)
	if err != nil {
		return nil, err
	}
	if len(peerPublic) != 32 {
		return nil, vault.ErrInvalidKeyLength
	}
	scalar := entry.raw
	clamp(&scalar)
	shared, err := curve25519.X25519(scalar[:], peerPublic)
	if err != nil {
		return nil, fmt.Errorf("memvault: ecdh: %w", err)
	}
	return shared, nil
}

// HKDF derives outLen bytes via HKDF-SHA256.
func (v *Vault) HKDF(ikm, salt, info []byte, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("memvault: hkdf: %w", err)
	}
	return out, nil
}

// AEADEncrypt encrypts under ChaCha20-Poly1305, matching the cipher suite
// the kex package negotiates via flynn/noise (noise.CipherChaChaPoly).
func (v *Vault) AEADEncrypt(key vault.KeyHandle, nonce [12]byte, aad, plaintext []byte) ([]byte, error) {
	entry, err := v.lookup(key, kindAEAD)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(entry.raw[:])
	if err != nil {
		return nil, fmt.Errorf("memvault: new aead: %w", err)
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// AEADDecrypt decrypts and authenticates under ChaCha20-Poly1305.
func (v *Vault) AEADDecrypt(key vault.KeyHandle, nonce [12]byte, aad, ciphertext []byte) ([]byte, error) {
	entry, err := v.lookup(key, kindAEAD)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(entry.raw[:])
	if err != nil {
		return nil, fmt.Errorf("memvault: new aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		v.logger.Debug("AEAD decryption failed authentication check")
		return nil, vault.ErrDecryptionFailed
	}
	return plaintext, nil
}

// Sign produces an Ed25519 signature, treating the handle's 32-byte raw
// material as the Ed25519 seed (the same key-handle type used for DH keys
// is reused as a signing seed here; see DESIGN.md).
func (v *Vault) Sign(key vault.KeyHandle, message []byte) ([]byte, error) {
	v.mu.Lock()
	entry, ok := v.keys[key.ID()]
	v.mu.Unlock()
	if !ok {
		return nil, vault.ErrKeyNotFound
	}
	priv := stded25519.NewKeyFromSeed(entry.raw[:])
	return stded25519.Sign(priv, message), nil
}

// Verify checks an Ed25519 signature against a raw 32-byte public key.
func (v *Vault) Verify(publicKey, message, sig []byte) bool {
	if len(publicKey) != stded25519.PublicKeySize {
		return false
	}
	return stded25519.Verify(publicKey, message, sig)
}

func (v *Vault) lookup(h vault.KeyHandle, kind keyKind) (*keyEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.keys[h.ID()]
	if !ok {
		return nil, vault.ErrKeyNotFound
	}
	if entry.kind != kind {
		return nil, vault.ErrWrongKeyKind
	}
	return entry, nil
}

// clamp applies the standard Curve25519 private key clamp, matching the
// teacher's crypto.FromSecretKey.
func clamp(k *[32]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
