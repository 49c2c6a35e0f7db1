// Package wire implements the binary encoding used to turn a bus.Message
// into the bytes that travel inside an AEAD-protected transport-phase
// payload. The format is a 1-byte discriminator followed by length-prefixed
// routes and body, mirroring the flat [type][data] layout the teacher uses
// for its own Packet.Serialize, extended with nested route encoding since a
// Message carries routes rather than a single opaque payload.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/channelmgr/bus"
)

// ErrTruncated indicates the input ended before a length-prefixed field
// could be fully read.
var ErrTruncated = errors.New("wire: truncated input")

// ErrAddressTooLarge indicates an address identifier exceeds the 8-bit
// length prefix used for address encoding.
var ErrAddressTooLarge = errors.New("wire: address identifier exceeds 255 bytes")

// Encode serializes a Message into its lossless byte form.
//
// Layout:
//
//	[type(1)][onward_route][return_route][body_len(4 BE)][body]
//
// where a route is [count(2 BE)] followed by that many addresses, and an
// address is [category(1)][id_len(1)][id bytes].
func Encode(m bus.Message) ([]byte, error) {
	var out []byte
	out = append(out, byte(m.Type))

	onward, err := encodeRoute(m.OnwardRoute)
	if err != nil {
		return nil, fmt.Errorf("encode onward route: %w", err)
	}
	out = append(out, onward...)

	ret, err := encodeRoute(m.ReturnRoute)
	if err != nil {
		return nil, fmt.Errorf("encode return route: %w", err)
	}
	out = append(out, ret...)

	bodyLen := make([]byte, 4)
	binary.BigEndian.PutUint32(bodyLen, uint32(len(m.Body)))
	out = append(out, bodyLen...)
	out = append(out, m.Body...)

	return out, nil
}

// Decode parses a Message from its encoded form, returning the message and
// the number of bytes consumed. Callers that require a lossless round trip
// should assert consumed == len(data).
func Decode(data []byte) (bus.Message, int, error) {
	if len(data) < 1 {
		return bus.Message{}, 0, ErrTruncated
	}
	pos := 0
	msgType := bus.MessageType(data[pos])
	pos++

	onward, n, err := decodeRoute(data[pos:])
	if err != nil {
		return bus.Message{}, 0, fmt.Errorf("decode onward route: %w", err)
	}
	pos += n

	ret, n, err := decodeRoute(data[pos:])
	if err != nil {
		return bus.Message{}, 0, fmt.Errorf("decode return route: %w", err)
	}
	pos += n

	if len(data[pos:]) < 4 {
		return bus.Message{}, 0, ErrTruncated
	}
	bodyLen := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	if uint32(len(data[pos:])) < bodyLen {
		return bus.Message{}, 0, ErrTruncated
	}
	body := make([]byte, bodyLen)
	copy(body, data[pos:pos+int(bodyLen)])
	pos += int(bodyLen)

	return bus.Message{
		OnwardRoute: onward,
		ReturnRoute: ret,
		Type:        msgType,
		Body:        body,
	}, pos, nil
}

func encodeRoute(r bus.Route) ([]byte, error) {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(r)))
	for _, addr := range r {
		if len(addr.ID) > 255 {
			return nil, ErrAddressTooLarge
		}
		out = append(out, byte(addr.Category), byte(len(addr.ID)))
		out = append(out, addr.ID...)
	}
	return out, nil
}

func decodeRoute(data []byte) (bus.Route, int, error) {
	if len(data) < 2 {
		return nil, 0, ErrTruncated
	}
	count := int(binary.BigEndian.Uint16(data))
	pos := 2

	var route bus.Route
	for i := 0; i < count; i++ {
		if len(data[pos:]) < 2 {
			return nil, 0, ErrTruncated
		}
		category := bus.AddressCategory(data[pos])
		idLen := int(data[pos+1])
		pos += 2
		if len(data[pos:]) < idLen {
			return nil, 0, ErrTruncated
		}
		id := make([]byte, idLen)
		copy(id, data[pos:pos+idLen])
		pos += idLen
		route = append(route, bus.Address{Category: category, ID: id})
	}
	return route, pos, nil
}
