package channelmgr

import (
	"fmt"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/kex"
)

// handleInitiate implements §4.1.1: peel a leading CHANNEL_ZERO from the
// route if present, allocate an Initiator channel, stash a pending local
// notification, ask the handshake strategy for M1, and emit it with
// CHANNEL_ZERO appended so the peer's router knows to create a fresh
// channel. Returns the new channel's cleartext address, useful for test
// harnesses.
func (m *Manager) handleInitiate(cmd bus.ChannelCommand) (bus.Address, error) {
	route := cmd.Route
	if len(route) > 0 && route[0].Equal(bus.ChannelZero) {
		route = route[1:]
	}

	staticKey := m.initStaticKey
	if len(cmd.StaticKey) > 0 {
		imported, err := m.crypto.ImportSecretKey(cmd.StaticKey)
		if err != nil {
			return bus.Address{}, fmt.Errorf("channelmgr: import initiator static key: %w", err)
		}
		staticKey = imported
	}

	strategy, err := m.kexFact.Initiator(staticKey)
	if err != nil {
		return bus.Address{}, fmt.Errorf("channelmgr: build initiator strategy: %w", err)
	}

	ch, err := m.createChannel(kex.Initiator, strategy)
	if err != nil {
		return bus.Address{}, err
	}

	pending := bus.Message{
		OnwardRoute: bus.Route{cmd.ReturnAddress},
		ReturnRoute: bus.Route{ch.ClearAddress()},
		Type:        bus.TypeNone,
	}
	ch.Mu.Lock()
	ch.Pending = &pending
	ka1, err := strategy.Process(nil)
	ch.Mu.Unlock()
	if err != nil {
		return bus.Address{}, fmt.Errorf("channelmgr: produce M1: %w", err)
	}

	onward := append(append(bus.Route{}, route...), bus.ChannelZero)
	out := bus.Message{
		OnwardRoute: onward,
		ReturnRoute: bus.Route{ch.CipherAddress()},
		Type:        bus.TypeKeyAgreementM1,
		Body:        ka1,
	}
	if err := m.sendRouter(out); err != nil {
		return bus.Address{}, err
	}

	m.logger.WithField("clear", ch.ClearAddress().String()).Info("initiated channel, sent M1")
	return ch.ClearAddress(), nil
}
