package wire_test

import (
	"testing"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := bus.Message{
		OnwardRoute: bus.Route{
			bus.NewChannelAddress(0x01020304),
			bus.NewWorkerAddress([]byte{0xAA, 0xBB}),
		},
		ReturnRoute: bus.Route{bus.NewChannelAddress(0x0A0B0C0D)},
		Type:        bus.TypePayload,
		Body:        []byte("hello wire"),
	}

	encoded, err := wire.Encode(msg)
	require.NoError(t, err)

	decoded, consumed, err := wire.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, msg, decoded)
}

func TestEncodeDecodeEmptyRoutesAndBody(t *testing.T) {
	msg := bus.Message{Type: bus.TypeNone}

	encoded, err := wire.Encode(msg)
	require.NoError(t, err)

	decoded, consumed, err := wire.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, bus.MessageType(bus.TypeNone), decoded.Type)
	assert.Empty(t, decoded.OnwardRoute)
	assert.Empty(t, decoded.ReturnRoute)
	assert.Empty(t, decoded.Body)
}

func TestDecodeTruncatedInputFails(t *testing.T) {
	msg := bus.Message{
		OnwardRoute: bus.Route{bus.NewChannelAddress(1)},
		Type:        bus.TypeKeyAgreementM1,
		Body:        []byte("abc"),
	}
	encoded, err := wire.Encode(msg)
	require.NoError(t, err)

	for n := 0; n < len(encoded); n++ {
		_, _, err := wire.Decode(encoded[:n])
		assert.ErrorIs(t, err, wire.ErrTruncated, "expected truncation error at length %d", n)
	}
}

func TestEncodeAddressTooLargeFails(t *testing.T) {
	bigID := make([]byte, 256)
	msg := bus.Message{
		OnwardRoute: bus.Route{bus.NewWorkerAddress(bigID)},
	}
	_, err := wire.Encode(msg)
	assert.ErrorIs(t, err, wire.ErrAddressTooLarge)
}
