// Package kex implements the key exchange strategies a channel runs before
// it can carry transport payloads. The only strategy shipped today is Noise
// XX (xx.go), grounded on the teacher's noise.XXHandshake, but the Strategy
// and Factory interfaces are kept general enough that spec.md's other
// handshake patterns (IK, XK, NK, KK) could be added later without touching
// channel or channelmgr.
package kex

import (
	"errors"

	"github.com/opd-ai/channelmgr/vault"
)

// Role distinguishes the two sides of a key exchange. The Noise XX pattern
// is symmetric in structure but not in message order: the Initiator sends
// first.
type Role uint8

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// Sentinel errors returned by Strategy implementations.
var (
	// ErrAlreadyComplete indicates Process was called after the exchange
	// finished.
	ErrAlreadyComplete = errors.New("kex: handshake already complete")
	// ErrNotComplete indicates Finalize was called before the exchange
	// finished.
	ErrNotComplete = errors.New("kex: handshake not complete")
)

// CompletedKeyExchange carries everything a Channel needs once a handshake
// finishes: a handle to the key used to encrypt outgoing transport payloads,
// a handle to the key used to decrypt incoming ones, the handshake
// transcript hash (used as AEAD associated data so replayed or
// cross-handshake ciphertexts fail authentication), and the peer's static
// public key (the identity a caller ultimately authenticates).
type CompletedKeyExchange struct {
	EncryptKey            vault.KeyHandle
	DecryptKey            vault.KeyHandle
	H                     [32]byte
	RemoteStaticPublicKey []byte
}

// Strategy drives one side of a single key exchange to completion.
//
// Process is called once per handshake message boundary:
//   - with a nil/empty received, it produces the next message this side must
//     send (only ever the Initiator's very first call);
//   - with a non-empty received, it consumes the peer's message and, if the
//     exchange is not yet finished, also produces this side's next message
//     to send in the same call.
//
// Callers drive Process until IsComplete reports true, then call Finalize
// exactly once.
type Strategy interface {
	Process(received []byte) (toSend []byte, err error)
	IsComplete() bool
	Finalize() (CompletedKeyExchange, error)
}

// Factory constructs a fresh Strategy for one side of a handshake, bound to
// a long-term static identity key already held by a vault.Provider.
type Factory interface {
	Initiator(staticKey vault.KeyHandle) (Strategy, error)
	Responder(staticKey vault.KeyHandle) (Strategy, error)
}
