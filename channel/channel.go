// Package channel holds the per-half-channel state a Manager drives through
// its handshake and transport phases: the two local addresses, the
// in-progress or completed key exchange, the nonce counter, the peer route,
// and any pending local-delivery notification. It is a data container; all
// protocol logic lives in channelmgr.
package channel

import (
	"errors"
	"sync"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/kex"
)

// ErrNonceOverflow indicates a channel's 16-bit nonce counter has been
// exhausted. No rekey protocol exists in this revision; the channel is
// unusable once this occurs.
var ErrNonceOverflow = errors.New("channel: nonce counter overflowed")

// Channel holds one party's half of a secure channel. Every field mutation
// happens while Mu is held; callers (channelmgr) are responsible for
// locking around a handler's full duration.
type Channel struct {
	Mu sync.Mutex

	Role kex.Role

	clearID  uint32
	cipherID uint32

	Agreement kex.Strategy
	Exchange  *kex.CompletedKeyExchange

	Nonce uint16
	Route bus.Route

	Pending *bus.Message
}

// New constructs a Channel with freshly allocated addresses. agreement is
// the handshake strategy driving this half and is stored as given.
func New(role kex.Role, clearID, cipherID uint32, agreement kex.Strategy) *Channel {
	return &Channel{
		Role:      role,
		clearID:   clearID,
		cipherID:  cipherID,
		Agreement: agreement,
	}
}

// ClearAddress renders the channel's cleartext local address: the 32-bit
// clear id as its little-endian 4-byte form.
func (c *Channel) ClearAddress() bus.Address {
	return bus.NewChannelAddress(c.clearID)
}

// CipherAddress renders the channel's ciphertext local address.
func (c *Channel) CipherAddress() bus.Address {
	return bus.NewChannelAddress(c.cipherID)
}

// Complete reports whether the handshake has finalized.
func (c *Channel) Complete() bool {
	return c.Exchange != nil
}

// NextNonce returns the AEAD nonce to use for the next encrypt or decrypt
// operation and the 16-bit counter value to place on the wire, without
// mutating state; callers advance the counter via AdvanceNonce only after
// the AEAD operation succeeds (spec: nonce increments after every
// successful AEAD operation, encrypt or decrypt alike, sharing one counter
// across both directions).
func (c *Channel) NextNonce() (aeadNonce [12]byte, wireN16 uint16) {
	return NonceTo96(c.Nonce), c.Nonce
}

// AdvanceNonce increments the shared nonce counter, returning
// ErrNonceOverflow if the 16-bit range is exhausted.
func (c *Channel) AdvanceNonce() error {
	if c.Nonce == 0xFFFF {
		return ErrNonceOverflow
	}
	c.Nonce++
	return nil
}
