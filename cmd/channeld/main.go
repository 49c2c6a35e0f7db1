// Package main provides the command-line entry point for channeld, a demo
// daemon that wires together a vault, a Noise XX key-exchange factory, two
// channel managers and a loopback router into a single running pair of
// peers, the way the Rust reference implementation's initiator and
// responder binaries (daemon/src/initiator.rs, daemon/src/responder.rs) each
// wire one side of a real network connection.
//
// channeld has no network transport of its own: bus/loopback only joins two
// Routers within one process, so this binary always runs both the
// initiator and the responder side of a single secure channel, reading
// lines from stdin on the initiator side and printing decrypted payloads to
// stdout on the responder side, exactly mirroring the Rust StdinWorker /
// Worker pair (daemon/src/initiator.rs, daemon/src/worker.rs) but joined
// in-process rather than over a socket.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/bus/loopback"
	"github.com/opd-ai/channelmgr/channelmgr"
	"github.com/opd-ai/channelmgr/kex"
	"github.com/opd-ai/channelmgr/vault"
	"github.com/opd-ai/channelmgr/vault/memvault"
	"github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logger := logrus.WithField("component", "channeld")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("channeld exited with error")
	}
}

func run(cfg Config, logger *logrus.Entry) error {
	crypto := memvault.New()
	kexFact := &kex.XXFactory{Vault: crypto}

	initiatorKey, initiatorPub, err := newIdentity(crypto, cfg.IdentityNameInitiator, logger)
	if err != nil {
		return err
	}
	responderKey, responderPub, err := newIdentity(crypto, cfg.IdentityNameResponder, logger)
	if err != nil {
		return err
	}
	logger.WithField("public_key", fmt.Sprintf("%x", responderPub)).Info("responder static public key")
	logger.WithField("public_key", fmt.Sprintf("%x", initiatorPub)).Info("initiator static public key")

	rxRouterInit := make(chan bus.RouterCommand, 64)
	rxRouterResp := make(chan bus.RouterCommand, 64)
	routerInit := loopback.New(rxRouterInit)
	routerResp := loopback.New(rxRouterResp)
	loopback.Peer(routerInit, routerResp)

	rxInit := make(chan bus.ChannelCommand, 64)
	rxResp := make(chan bus.ChannelCommand, 64)

	mgrInit, err := channelmgr.New(rxInit, rxInit, rxRouterInit, crypto, kexFact, initiatorKey, initiatorKey)
	if err != nil {
		return fmt.Errorf("channeld: build initiator manager: %w", err)
	}
	mgrResp, err := channelmgr.New(rxResp, rxResp, rxRouterResp, crypto, kexFact, responderKey, responderKey)
	if err != nil {
		return fmt.Errorf("channeld: build responder manager: %w", err)
	}

	serviceAddr, err := hexWorkerAddress(cfg.ServiceAddress)
	if err != nil {
		return err
	}

	workerInit := make(chan bus.ChannelCommand, 64)
	workerResp := make(chan bus.ChannelCommand, 64)
	registerWorker(rxRouterInit, workerInit)
	registerWorker(rxRouterResp, workerResp)
	if err := routerInit.Poll(); err != nil {
		return err
	}
	if err := routerResp.Poll(); err != nil {
		return err
	}

	// The responder side plays worker.rs: it prints every payload it
	// receives on its service address to stdout.
	printer := &stdoutWorker{addr: serviceAddr, logger: logger.WithField("role", "responder_worker")}

	// The initiator side plays initiator.rs's StdinWorker: it kicks off
	// the handshake, learns its own channel's cleartext address from the
	// finalization notification, then relays stdin lines as Payloads.
	relay := &stdinRelay{workerAddr: serviceAddr, managerTx: rxInit, logger: logger.WithField("role", "initiator_worker")}

	rxInit <- bus.ChannelCommand{
		Kind:          bus.CmdInitiate,
		ReturnAddress: serviceAddr,
	}

	for i := 0; i < 8; i++ {
		if _, err := mgrInit.Poll(); err != nil {
			return err
		}
		if err := routerInit.Poll(); err != nil {
			return err
		}
		if _, err := mgrResp.Poll(); err != nil {
			return err
		}
		if err := routerResp.Poll(); err != nil {
			return err
		}
	}

	select {
	case notif := <-workerInit:
		if err := relay.receiveChannel(notif.Message); err != nil {
			return err
		}
	default:
		return fmt.Errorf("channeld: handshake did not finalize")
	}

	logger.Info("secure channel established; type lines on stdin, Ctrl-D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := relay.sendLine(scanner.Text()); err != nil {
			return err
		}
		if _, err := mgrInit.Poll(); err != nil {
			return err
		}
		if err := routerInit.Poll(); err != nil {
			return err
		}
		if _, err := mgrResp.Poll(); err != nil {
			return err
		}
		if err := routerResp.Poll(); err != nil {
			return err
		}
		drainPrinter(workerResp, printer)
	}
	return scanner.Err()
}

func newIdentity(crypto vault.Provider, name string, logger *logrus.Entry) (vault.KeyHandle, []byte, error) {
	key, err := crypto.NewSecretKey()
	if err != nil {
		return vault.NoKey, nil, fmt.Errorf("channeld: generate %s identity: %w", name, err)
	}
	pub, err := crypto.PublicKey(key)
	if err != nil {
		return vault.NoKey, nil, fmt.Errorf("channeld: derive %s public key: %w", name, err)
	}
	logger.WithField("identity", name).Debug("generated identity key")
	return key, pub, nil
}

func registerWorker(routerTx chan<- bus.RouterCommand, handler chan<- bus.ChannelCommand) {
	routerTx <- bus.RouterCommand{Kind: bus.RouterRegister, AddressType: bus.AddressWorker, Handler: handler}
}

func hexWorkerAddress(s string) (bus.Address, error) {
	id, err := hex.DecodeString(s)
	if err != nil {
		return bus.Address{}, fmt.Errorf("channeld: parse service address %q: %w", s, err)
	}
	return bus.NewWorkerAddress(id), nil
}

func drainPrinter(workerResp <-chan bus.ChannelCommand, printer *stdoutWorker) {
	for {
		select {
		case cmd := <-workerResp:
			printer.handle(cmd.Message)
		default:
			return
		}
	}
}
