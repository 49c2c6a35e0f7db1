// Package channelmgr implements the stateful component that creates,
// tracks and retires secure channels, dispatches bus messages to the
// correct channel by routing address, and drives each channel through its
// handshake and payload phases. It is grounded on the teacher's
// NoiseTransport (transport/noise_transport.go) for its logging density and
// mutex-guarded session bookkeeping, and on the single-threaded cooperative
// poller architecture of the channel manager this system reimplements.
package channelmgr

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/channel"
	"github.com/opd-ai/channelmgr/kex"
	"github.com/opd-ai/channelmgr/vault"
	"github.com/sirupsen/logrus"
)

// Manager owns the set of Channels, registers with the router, receives
// commands over rx, and emits outbound bus messages over routerTx. It is a
// single-threaded cooperative poller: Poll drains rx non-blockingly and
// returns; there is no internal goroutine.
type Manager struct {
	id uuid.UUID

	rx       <-chan bus.ChannelCommand
	routerTx chan<- bus.RouterCommand

	crypto  vault.Provider
	kexFact kex.Factory

	respStaticKey vault.KeyHandle
	initStaticKey vault.KeyHandle

	mu       sync.Mutex
	channels map[string]*channel.Channel

	logger *logrus.Entry
}

// New constructs a Manager and registers tx with the router under
// address-category Channel. rx and tx are the two ends of the same
// underlying command channel: the manager reads from rx, and the router is
// handed tx so it can deliver inbound bus messages as ReceiveMessage
// commands. respStaticKey and initStaticKey are the default identity keys
// used for responder and initiator roles respectively when a command does
// not supply its own.
func New(
	rx <-chan bus.ChannelCommand,
	tx chan<- bus.ChannelCommand,
	routerTx chan<- bus.RouterCommand,
	crypto vault.Provider,
	kexFact kex.Factory,
	respStaticKey, initStaticKey vault.KeyHandle,
) (*Manager, error) {
	m := &Manager{
		id:            uuid.New(),
		rx:            rx,
		routerTx:      routerTx,
		crypto:        crypto,
		kexFact:       kexFact,
		respStaticKey: respStaticKey,
		initStaticKey: initStaticKey,
		channels:      make(map[string]*channel.Channel),
	}
	m.logger = logrus.WithFields(logrus.Fields{
		"component": "channelmgr",
		"manager":   m.id.String(),
	})

	reg := bus.RouterCommand{
		Kind:        bus.RouterRegister,
		AddressType: bus.AddressChannel,
		Handler:     tx,
	}
	select {
	case routerTx <- reg:
	default:
		m.logger.Error("router registration channel is full or closed")
		return nil, ErrCantSend
	}

	m.logger.Debug("manager registered with router")
	return m, nil
}

// Poll drains the inbound command queue non-blockingly, processing each
// command in arrival order, and returns. It returns an error if a command
// handler fails; a Stop command clears the channel table and ends the
// drain early. The boolean result is always true on success, matching the
// reference design's "keep scheduling" signal — the host scheduler, not
// this return value, decides whether to call Poll again.
func (m *Manager) Poll() (bool, error) {
	for {
		select {
		case cmd, ok := <-m.rx:
			if !ok {
				return true, nil
			}
			stop, err := m.handleCommand(cmd)
			if err != nil {
				m.logger.WithError(err).WithField("kind", cmd.Kind).Warn("command handling failed")
				return true, err
			}
			if stop {
				return true, nil
			}
		default:
			return true, nil
		}
	}
}

func (m *Manager) handleCommand(cmd bus.ChannelCommand) (stop bool, err error) {
	switch cmd.Kind {
	case bus.CmdInitiate:
		_, err := m.handleInitiate(cmd)
		return false, err
	case bus.CmdStop:
		m.handleStop()
		return true, nil
	case bus.CmdSendMessage:
		return false, m.handleSendMessage(cmd.Message)
	case bus.CmdReceiveMessage:
		return false, m.handleReceiveMessage(cmd.Message)
	default:
		return false, &InvalidParamError{Index: 0}
	}
}

func (m *Manager) handleStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.WithField("channel_count", len(m.channels)/2).Info("clearing channel table")
	m.channels = make(map[string]*channel.Channel)
}

// sendRouter hands a Message to the router as a SendMessage command.
func (m *Manager) sendRouter(msg bus.Message) error {
	cmd := bus.RouterCommand{Kind: bus.RouterSendMessage, Message: msg}
	select {
	case m.routerTx <- cmd:
		return nil
	default:
		return ErrCantSend
	}
}

// deliverLocal hands a Message to the router as a ReceiveMessage command,
// for local delivery to a worker registered behind one of its addresses.
func (m *Manager) deliverLocal(msg bus.Message) error {
	cmd := bus.RouterCommand{Kind: bus.RouterReceiveMessage, Message: msg}
	select {
	case m.routerTx <- cmd:
		return nil
	default:
		return ErrCantSend
	}
}

func (m *Manager) lookup(addr bus.Address) (*channel.Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[addr.String()]
	return ch, ok
}

// createChannel allocates two independent uniformly random 32-bit
// identifiers and installs ch under both rendered addresses (spec
// invariant I3). CHANNEL_ZERO is never installed as a stored key (I5).
func (m *Manager) createChannel(role kex.Role, agreement kex.Strategy) (*channel.Channel, error) {
	clearID, err := m.randomID()
	if err != nil {
		return nil, err
	}
	cipherID, err := m.randomID()
	if err != nil {
		return nil, err
	}

	ch := channel.New(role, clearID, cipherID, agreement)

	m.mu.Lock()
	m.channels[ch.ClearAddress().String()] = ch
	m.channels[ch.CipherAddress().String()] = ch
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"role":   role,
		"clear":  ch.ClearAddress().String(),
		"cipher": ch.CipherAddress().String(),
	}).Debug("created channel")

	return ch, nil
}

func (m *Manager) randomID() (uint32, error) {
	for {
		raw, err := m.crypto.RandomBytes(4)
		if err != nil {
			return 0, fmt.Errorf("channelmgr: allocate address: %w", err)
		}
		// Zero renders as CHANNEL_ZERO, which is never a stored key (I5).
		if id := binary.LittleEndian.Uint32(raw); id != 0 {
			return id, nil
		}
	}
}
