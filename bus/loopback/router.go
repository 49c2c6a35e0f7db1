// Package loopback implements an in-process message router: the external
// collaborator channelmgr.Manager registers with and exchanges
// bus.RouterCommand values through. It exists to drive end-to-end tests of
// two managers handshaking with each other, and to give cmd/channeld a
// minimal router without a real network transport.
package loopback

import (
	"errors"
	"sync"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/sirupsen/logrus"
)

// ErrNoRoute indicates a Message's onward route is empty, a SendMessage has
// no peer router to cross to, or the target handler's queue is full.
var ErrNoRoute = errors.New("loopback: no route for message")

// Router is a minimal address-type multiplexer. Two Routers can be peered
// (see Peer) so that every SendMessage command is forwarded to the other
// side, modeling two processes joined by a single transport link.
type Router struct {
	rx <-chan bus.RouterCommand

	mu       sync.Mutex
	handlers map[bus.AddressCategory]chan<- bus.ChannelCommand
	peer     *Router

	logger *logrus.Entry
}

// New creates a Router that reads router commands from rx.
func New(rx <-chan bus.RouterCommand) *Router {
	return &Router{
		rx:       rx,
		handlers: make(map[bus.AddressCategory]chan<- bus.ChannelCommand),
		logger:   logrus.WithField("component", "loopback_router"),
	}
}

// Peer links two routers bidirectionally: a SendMessage command on either
// router is handed to the peer's handler for that address category,
// simulating delivery across a transport link.
func Peer(a, b *Router) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

// Poll drains one router's inbound command queue non-blockingly.
func (r *Router) Poll() error {
	for {
		select {
		case cmd, ok := <-r.rx:
			if !ok {
				return nil
			}
			if err := r.handle(cmd); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (r *Router) handle(cmd bus.RouterCommand) error {
	switch cmd.Kind {
	case bus.RouterRegister:
		r.mu.Lock()
		r.handlers[cmd.AddressType] = cmd.Handler
		r.mu.Unlock()
		r.logger.WithField("address_type", cmd.AddressType.String()).Debug("handler registered")
		return nil
	case bus.RouterSendMessage:
		// A SendMessage command means the message must leave this node to
		// reach its destination: hand it across the simulated transport
		// link to the peer router, which treats it as newly arrived and
		// dispatches it to its own local handler.
		r.mu.Lock()
		peer := r.peer
		r.mu.Unlock()
		if peer == nil {
			return ErrNoRoute
		}
		return peer.deliverLocal(cmd.Message)
	case bus.RouterReceiveMessage:
		// A ReceiveMessage command is always local delivery to a handler
		// registered on this same node; it never crosses the wire.
		return r.deliverLocal(cmd.Message)
	default:
		return nil
	}
}

// deliverLocal dispatches msg to whichever handler is registered on this
// router for the category of its onward head address. A miss is a silent
// drop: no worker is listening for that category on this node.
func (r *Router) deliverLocal(msg bus.Message) error {
	if len(msg.OnwardRoute) == 0 {
		return ErrNoRoute
	}
	head := msg.OnwardRoute[0]

	r.mu.Lock()
	handler, ok := r.handlers[head.Category]
	r.mu.Unlock()

	if !ok {
		r.logger.WithField("address", head.String()).Debug("dropping message with no local handler")
		return nil
	}

	select {
	case handler <- bus.ChannelCommand{Kind: bus.CmdReceiveMessage, Message: msg}:
		return nil
	default:
		return ErrNoRoute
	}
}
