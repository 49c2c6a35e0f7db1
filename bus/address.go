// Package bus defines the wire-level data model shared by the channel
// manager and the surrounding message router: addresses, routes, messages,
// and the command vocabulary exchanged between them.
package bus

import (
	"bytes"
	"encoding/hex"
)

// AddressCategory discriminates the kind of endpoint an Address refers to.
type AddressCategory uint8

const (
	// AddressChannel identifies a channel half (cleartext or ciphertext side).
	AddressChannel AddressCategory = iota
	// AddressWorker identifies a local worker endpoint outside the channel core.
	AddressWorker
)

// String renders the category name for logging.
func (c AddressCategory) String() string {
	switch c {
	case AddressChannel:
		return "channel"
	case AddressWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// Address is an opaque, typed endpoint identifier on the message bus.
// Two addresses are equal iff their category and identifier bytes agree.
type Address struct {
	Category AddressCategory
	ID       []byte
}

// NewChannelAddress renders a little-endian 32-bit channel id into its
// Address form.
func NewChannelAddress(id uint32) Address {
	b := make([]byte, 4)
	b[0] = byte(id)
	b[1] = byte(id >> 8)
	b[2] = byte(id >> 16)
	b[3] = byte(id >> 24)
	return Address{Category: AddressChannel, ID: b}
}

// NewWorkerAddress wraps an arbitrary identifier as a worker Address.
func NewWorkerAddress(id []byte) Address {
	cp := make([]byte, len(id))
	copy(cp, id)
	return Address{Category: AddressWorker, ID: cp}
}

// ChannelZero is the sentinel Address meaning "allocate a new channel here".
// It is never installed in the manager's address table; it only appears on
// the wire when initiating or receiving an M1.
var ChannelZero = Address{Category: AddressChannel, ID: []byte{0, 0, 0, 0}}

// WorkerZero is the Worker-category counterpart of ChannelZero, used only
// by the Responder's synthesized finalization notification (§4.3.1) when no
// pending notification was stashed for it to deliver instead.
var WorkerZero = Address{Category: AddressWorker, ID: []byte{0, 0, 0, 0}}

// IsChannelZero reports whether this address is the CHANNEL_ZERO sentinel.
func (a Address) IsChannelZero() bool {
	return a.Category == AddressChannel && bytes.Equal(a.ID, ChannelZero.ID)
}

// Equal reports whether two addresses share a category and identifier.
func (a Address) Equal(other Address) bool {
	return a.Category == other.Category && bytes.Equal(a.ID, other.ID)
}

// String renders the address's on-bus form: lowercase hex of the identifier.
func (a Address) String() string {
	return hex.EncodeToString(a.ID)
}

// Route is an ordered sequence of addresses. The first element is the next
// hop; the last is the final destination.
type Route []Address

// Clone returns an independent copy of the route.
func (r Route) Clone() Route {
	if r == nil {
		return nil
	}
	out := make(Route, len(r))
	copy(out, r)
	return out
}

// WithPrepended returns a new route with addr inserted at position 0.
func (r Route) WithPrepended(addr Address) Route {
	out := make(Route, 0, len(r)+1)
	out = append(out, addr)
	out = append(out, r...)
	return out
}
