package channelmgr

import (
	"fmt"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/channel"
	"github.com/opd-ai/channelmgr/kex"
)

// handleReceiveMessage implements §4.1.3: resolve the target channel (or
// allocate a Responder channel on CHANNEL_ZERO), then dispatch by message
// type.
func (m *Manager) handleReceiveMessage(msg bus.Message) error {
	if len(msg.OnwardRoute) == 0 {
		return ErrRecv
	}
	head := msg.OnwardRoute[0]

	var target *channel.Channel
	if head.Equal(bus.ChannelZero) {
		strategy, err := m.kexFact.Responder(m.respStaticKey)
		if err != nil {
			return fmt.Errorf("channelmgr: build responder strategy: %w", err)
		}
		ch, err := m.createChannel(kex.Responder, strategy)
		if err != nil {
			return err
		}
		target = ch
	} else {
		ch, ok := m.lookup(head)
		if !ok {
			m.logger.WithField("address", head.String()).Debug("dropping message for unknown channel")
			return nil
		}
		target = ch
	}

	switch msg.Type {
	case bus.TypeKeyAgreementM1:
		return m.handleM1(target, msg)
	case bus.TypeKeyAgreementM2:
		return m.handleM2(target, msg)
	case bus.TypeKeyAgreementM3:
		return m.handleM3(target, msg)
	case bus.TypePayload:
		return m.handlePayloadRecv(target, msg)
	default:
		return ErrNotImplemented
	}
}

// handleM1 implements the Responder's R0 transition: consume M1, produce
// M2, send it back along the peer's return route.
func (m *Manager) handleM1(ch *channel.Channel, msg bus.Message) error {
	ch.Mu.Lock()
	defer ch.Mu.Unlock()

	if ch.Complete() {
		return ErrState
	}

	out, err := ch.Agreement.Process(msg.Body)
	if err != nil {
		return fmt.Errorf("channelmgr: process M1: %w", err)
	}

	return m.sendRouter(bus.Message{
		OnwardRoute: msg.ReturnRoute,
		ReturnRoute: bus.Route{ch.CipherAddress()},
		Type:        bus.TypeKeyAgreementM2,
		Body:        out,
	})
}

// handleM2 implements the Initiator's I1 transition: consume M2, produce
// M3, send it, finalize the key exchange, record the peer route, and
// deliver the pending local notification.
func (m *Manager) handleM2(ch *channel.Channel, msg bus.Message) error {
	ch.Mu.Lock()

	if ch.Complete() {
		ch.Mu.Unlock()
		return ErrState
	}

	out, err := ch.Agreement.Process(msg.Body)
	if err != nil {
		ch.Mu.Unlock()
		return fmt.Errorf("channelmgr: process M2: %w", err)
	}
	if !ch.Agreement.IsComplete() {
		ch.Mu.Unlock()
		return fmt.Errorf("channelmgr: handshake did not complete after M2/M3 exchange")
	}

	exchange, err := ch.Agreement.Finalize()
	if err != nil {
		ch.Mu.Unlock()
		return fmt.Errorf("channelmgr: finalize initiator exchange: %w", err)
	}
	ch.Exchange = &exchange
	ch.Route = msg.ReturnRoute

	pending := ch.Pending
	ch.Pending = nil
	clearAddr := ch.ClearAddress()
	route := ch.Route
	ch.Mu.Unlock()

	if err := m.sendRouter(bus.Message{
		OnwardRoute: msg.ReturnRoute,
		ReturnRoute: bus.Route{ch.CipherAddress()},
		Type:        bus.TypeKeyAgreementM3,
		Body:        out,
	}); err != nil {
		return err
	}

	if pending == nil {
		return nil
	}

	notification := pending.Clone()
	notification.ReturnRoute = append(bus.Route{clearAddr}, route...)
	notification.Body = append([]byte(nil), exchange.RemoteStaticPublicKey...)

	return m.deliverLocal(notification)
}

// handleM3 implements the Responder's R1 transition: consume M3 (its
// output is ignored), finalize, record the peer route, and deliver the
// Responder-side notification (§4.3.1).
func (m *Manager) handleM3(ch *channel.Channel, msg bus.Message) error {
	ch.Mu.Lock()

	if ch.Complete() {
		ch.Mu.Unlock()
		return ErrState
	}

	if _, err := ch.Agreement.Process(msg.Body); err != nil {
		ch.Mu.Unlock()
		return fmt.Errorf("channelmgr: process M3: %w", err)
	}
	if !ch.Agreement.IsComplete() {
		ch.Mu.Unlock()
		return fmt.Errorf("channelmgr: handshake did not complete after M3")
	}

	exchange, err := ch.Agreement.Finalize()
	if err != nil {
		ch.Mu.Unlock()
		return fmt.Errorf("channelmgr: finalize responder exchange: %w", err)
	}
	ch.Exchange = &exchange
	ch.Route = msg.ReturnRoute

	pending := ch.Pending
	ch.Pending = nil
	clearAddr := ch.ClearAddress()
	route := ch.Route
	ch.Mu.Unlock()

	var notification bus.Message
	if pending != nil {
		notification = pending.Clone()
		notification.ReturnRoute = append(bus.Route{clearAddr}, route...)
		notification.Body = append([]byte(nil), exchange.RemoteStaticPublicKey...)
	} else {
		notification = bus.Message{
			OnwardRoute: bus.Route{bus.WorkerZero},
			ReturnRoute: append(bus.Route{clearAddr}, route...),
			Type:        bus.TypeNone,
		}
	}

	return m.deliverLocal(notification)
}
