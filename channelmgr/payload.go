package channelmgr

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/channel"
	"github.com/opd-ai/channelmgr/wire"
)

// handleSendMessage implements §4.1.2: strip the head channel address,
// encode the remainder, encrypt it under the channel's transport key, and
// emit it as a Payload message addressed to the peer's route.
//
// An unknown head address, or a known channel whose handshake has not
// finished, is a silent no-op (I1; §8 scenario 3) rather than an error, so
// that a worker can send ahead of handshake completion without its send
// path failing.
func (m *Manager) handleSendMessage(msg bus.Message) error {
	if len(msg.OnwardRoute) == 0 {
		return ErrCantSend
	}
	head := msg.OnwardRoute[0]

	ch, ok := m.lookup(head)
	if !ok {
		m.logger.WithField("address", head.String()).Debug("dropping send for unknown channel")
		return nil
	}

	ch.Mu.Lock()
	defer ch.Mu.Unlock()

	if !ch.Complete() {
		m.logger.WithField("address", head.String()).Debug("dropping send before handshake completion")
		return nil
	}

	stripped := msg
	stripped.OnwardRoute = msg.OnwardRoute[1:]

	encoded, err := wire.Encode(stripped)
	if err != nil {
		return fmt.Errorf("channelmgr: encode payload: %w", err)
	}

	nonce96, n16 := ch.NextNonce()
	ciphertext, err := m.crypto.AEADEncrypt(ch.Exchange.EncryptKey, nonce96, ch.Exchange.H[:], encoded)
	if err != nil {
		return fmt.Errorf("channelmgr: encrypt payload: %w", err)
	}
	if err := ch.AdvanceNonce(); err != nil {
		return err
	}

	body := make([]byte, 2+len(ciphertext))
	binary.LittleEndian.PutUint16(body, n16)
	copy(body[2:], ciphertext)

	return m.sendRouter(bus.Message{
		OnwardRoute: ch.Route,
		ReturnRoute: bus.Route{ch.CipherAddress()},
		Type:        bus.TypePayload,
		Body:        body,
	})
}

// handlePayloadRecv implements §4.4: split the little-endian nonce prefix,
// decrypt under the channel's decrypt key with the transcript hash as AAD,
// decode the result as a Message, and deliver it locally. A Payload
// addressed to a channel whose handshake has not completed is a silent
// no-op (I1).
func (m *Manager) handlePayloadRecv(ch *channel.Channel, msg bus.Message) error {
	ch.Mu.Lock()
	defer ch.Mu.Unlock()

	if !ch.Complete() {
		m.logger.Debug("dropping payload before handshake completion")
		return nil
	}

	if len(msg.Body) < 2 {
		return ErrRecv
	}
	n16 := binary.LittleEndian.Uint16(msg.Body[:2])
	ciphertext := msg.Body[2:]
	nonce96 := channel.NonceTo96(n16)

	plaintext, err := m.crypto.AEADDecrypt(ch.Exchange.DecryptKey, nonce96, ch.Exchange.H[:], ciphertext)
	if err != nil {
		return fmt.Errorf("channelmgr: decrypt payload: %w", err)
	}
	if err := ch.AdvanceNonce(); err != nil {
		return err
	}

	decoded, _, err := wire.Decode(plaintext)
	if err != nil {
		return fmt.Errorf("channelmgr: decode payload: %w", err)
	}

	return m.deliverLocal(decoded)
}
