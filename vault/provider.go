// Package vault defines the crypto provider contract the channel manager
// core consumes. It is the boundary the core was designed to treat as an
// external collaborator (spec §1, §6): random bytes, SHA-256, secret-key
// lifecycle, ECDH, HKDF, AEAD encrypt/decrypt, and signing, all addressed
// through opaque KeyHandle values rather than raw key bytes.
package vault

import "errors"

// Sentinel errors returned by Provider implementations.
var (
	// ErrKeyNotFound indicates the handle does not refer to a live key.
	ErrKeyNotFound = errors.New("vault: key handle not found")
	// ErrWrongKeyKind indicates the handle exists but is the wrong kind of
	// key for the requested operation (e.g. an AEAD key used for ECDH).
	ErrWrongKeyKind = errors.New("vault: wrong key kind for operation")
	// ErrDecryptionFailed indicates AEAD authentication failed.
	ErrDecryptionFailed = errors.New("vault: AEAD decryption failed")
	// ErrInvalidKeyLength indicates an imported key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("vault: key must be 32 bytes")
)

// KeyHandle is an opaque reference to key material held inside a Provider.
// Callers see raw key bytes of a generated or imported key only through
// ExportSecretKey.
type KeyHandle struct {
	id uint64
}

// NoKey is the zero KeyHandle, never returned by a successful Provider call.
var NoKey = KeyHandle{}

// NewKeyHandle is used only by Provider implementations to mint handles.
func NewKeyHandle(id uint64) KeyHandle { return KeyHandle{id: id} }

// ID exposes the opaque handle value for logging; implementations may use
// it as a map key but callers must not assume any meaning beyond identity.
func (h KeyHandle) ID() uint64 { return h.id }

// Provider is the crypto provider ("vault") contract consumed by the
// channel manager core. Exactly one concrete implementation ships with this
// module: memvault.Vault, a software-only key store with no persistence.
type Provider interface {
	// RandomBytes returns n cryptographically secure random bytes.
	RandomBytes(n int) ([]byte, error)

	// SHA256 computes the SHA-256 digest of data.
	SHA256(data []byte) [32]byte

	// NewSecretKey generates a fresh Curve25519 secret key and returns a
	// handle to it. The raw key leaves the provider only through
	// ExportSecretKey.
	NewSecretKey() (KeyHandle, error)

	// ImportSecretKey installs a caller-supplied 32-byte Curve25519 secret
	// key into the provider and returns a handle to it.
	ImportSecretKey(raw []byte) (KeyHandle, error)

	// ImportAEADKey installs a caller-supplied 32-byte symmetric key for
	// later AEAD use and returns a handle to it.
	ImportAEADKey(raw []byte) (KeyHandle, error)

	// ExportSecretKey returns the raw 32-byte seed behind a secret key
	// handle. It exists for the narrow case of handing a long-term
	// identity key to a handshake engine that must run its own internal
	// Diffie-Hellman math (see kex); ordinary callers should prefer ECDH,
	// HKDF, Sign and AEADEncrypt/AEADDecrypt, which never surface raw key
	// material.
	ExportSecretKey(h KeyHandle) ([]byte, error)

	// PublicKey returns the Curve25519 public key associated with a secret
	// key handle.
	PublicKey(h KeyHandle) ([]byte, error)

	// DestroySecretKey removes a key from the provider, wiping it from
	// memory.
	DestroySecretKey(h KeyHandle) error

	// ECDH computes the Curve25519 shared secret between a secret key
	// handle and a peer's raw public key.
	ECDH(priv KeyHandle, peerPublic []byte) ([]byte, error)

	// HKDF derives outLen bytes of key material from ikm, salt, and info
	// using HKDF-SHA256.
	HKDF(ikm, salt, info []byte, outLen int) ([]byte, error)

	// AEADEncrypt encrypts plaintext under the key referenced by key,
	// using nonce and aad. Returns ciphertext with the authentication tag
	// appended.
	AEADEncrypt(key KeyHandle, nonce [12]byte, aad, plaintext []byte) ([]byte, error)

	// AEADDecrypt decrypts ciphertext (with trailing tag) under the key
	// referenced by key, using nonce and aad.
	AEADDecrypt(key KeyHandle, nonce [12]byte, aad, ciphertext []byte) ([]byte, error)

	// Sign produces an Ed25519 signature over message using the secret key
	// seed referenced by key.
	Sign(key KeyHandle, message []byte) ([]byte, error)

	// Verify checks an Ed25519 signature over message against a raw public
	// key.
	Verify(publicKey, message, sig []byte) bool
}
