package main

import (
	"fmt"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/sirupsen/logrus"
)

// stdinRelay plays the initiator side of the demo: it learns its local
// channel's cleartext address from the finalization notification, then turns each
// stdin line into a Payload addressed through that channel to the
// responder's service worker. Grounded on daemon/src/initiator.rs's
// StdinWorker.
type stdinRelay struct {
	workerAddr bus.Address
	channel    bus.Address
	managerTx  chan<- bus.ChannelCommand
	logger     *logrus.Entry
}

// receiveChannel extracts the newly-established channel's address from a
// handshake finalization notification, matching StdinWorker::receive_channel.
func (r *stdinRelay) receiveChannel(msg bus.Message) error {
	if len(msg.ReturnRoute) == 0 {
		return fmt.Errorf("channeld: finalization notification has no return route")
	}
	r.channel = msg.ReturnRoute[0]
	r.logger.WithFields(logrus.Fields{
		"channel":           r.channel.String(),
		"remote_static_key": fmt.Sprintf("%x", msg.Body),
	}).Info("channel finalized")
	return nil
}

// sendLine wraps text as a Payload and enqueues it for the manager to
// encrypt and forward, matching StdinWorker::poll's stdin-read branch.
func (r *stdinRelay) sendLine(text string) error {
	msg := bus.Message{
		OnwardRoute: bus.Route{r.channel, r.workerAddr},
		Type:        bus.TypePayload,
		Body:        []byte(text),
	}
	select {
	case r.managerTx <- bus.ChannelCommand{Kind: bus.CmdSendMessage, Message: msg}:
	default:
		return fmt.Errorf("channeld: manager command queue full")
	}
	return nil
}

// stdoutWorker plays the responder side of the demo: every Payload
// addressed to it is printed to stdout, matching daemon/src/worker.rs's
// default (non-InfluxDB) work function.
type stdoutWorker struct {
	addr   bus.Address
	logger *logrus.Entry
}

func (w *stdoutWorker) handle(msg bus.Message) {
	switch msg.Type {
	case bus.TypePayload:
		if len(msg.OnwardRoute) == 0 || !msg.OnwardRoute[0].Equal(w.addr) {
			w.logger.Warn("received payload for a different worker address")
			return
		}
		fmt.Println(string(msg.Body))
	case bus.TypeNone:
	default:
		w.logger.WithField("type", msg.Type.String()).Warn("unexpected message type on worker address")
	}
}
