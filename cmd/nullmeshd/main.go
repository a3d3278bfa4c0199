// Command nullmeshd runs a nullifier-gossip node: it listens for peer
// connections and relays nullifier observations through the gossip engine.
// Minting, transferring, and receiving tokens is a library operation (see
// the token package), not something this daemon exposes directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/nullmesh/nullmesh"
	"github.com/nullmesh/nullmesh/witness"
)

var shutdownChannel = make(chan struct{})

// nullmeshdMain is the real entry point: it exists separately from main so
// that deferred cleanup still runs on a graceful exit, which a bare
// os.Exit from main would skip.
func nullmeshdMain() error {
	cfg, err := nullmesh.LoadConfig()
	if err != nil {
		return err
	}
	nullmesh.SetLogLevels(cfg.LogLevel)

	n, err := nullmesh.NewNode(cfg, nopWitness{}, nil)
	if err != nil {
		return fmt.Errorf("unable to create node: %w", err)
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("unable to start node: %w", err)
	}

	for _, addr := range cfg.Connect {
		addr := addr
		go func() {
			if err := n.Connect(context.Background(), addr); err != nil {
				fmt.Fprintf(os.Stderr, "unable to connect to %s: %v\n", addr, err)
			}
		}()
	}

	addInterruptHandler(func() {
		n.Stop()
		n.WaitForShutdown()
	})

	<-shutdownChannel
	return nil
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := nullmeshdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// addInterruptHandler invokes handler once on SIGINT/SIGTERM, then closes
// shutdownChannel so nullmeshdMain's wait unblocks. A second signal forces
// an immediate exit, the way lnd's interrupt handler bails out on a
// repeated Ctrl-C from an operator who doesn't want to wait for a graceful
// shutdown.
func addInterruptHandler(handler func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		go func() {
			handler()
			close(shutdownChannel)
		}()
		<-sigCh
		os.Exit(1)
	}()
}

// nopWitness is the default witness.Client wired in when no external witness
// service is configured: every attestation it issues carries zero witnesses,
// which the validator's deep mode correctly refuses to treat as strong
// evidence.
type nopWitness struct{}

func (nopWitness) Verify(ctx context.Context, nullifier [32]byte, proof witness.Attestation) (bool, error) {
	return true, nil
}

func (nopWitness) Attest(ctx context.Context, nullifier [32]byte, commitment [32]byte) (witness.Attestation, error) {
	return witness.Attestation{}, nil
}
