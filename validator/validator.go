// Package validator implements the confidence-scoring state machine that
// turns gossip propagation, witness depth, and elapsed wait into an
// accept/reject decision for an incoming transfer.
package validator

import (
	"context"
	"time"

	"github.com/nullmesh/nullmesh/scorer"
	"github.com/nullmesh/nullmesh/witness"
)

// Mode selects how much evidence the validator gathers before deciding.
type Mode int

const (
	// ModeFast samples gossip state immediately with no wait, at half
	// the usual confidence bar, for low-value transfers.
	ModeFast Mode = iota
	// ModeStandard waits Config.WaitTime to accumulate propagation.
	ModeStandard
	// ModeDeep waits Config.DeepWaitTime and additionally requires a
	// witness depth of at least DeepMinWitnessDepth.
	ModeDeep
)

// DeepMinWitnessDepth is the minimum witness signature count Deep mode
// requires on top of the confidence threshold.
const DeepMinWitnessDepth = 5

// Config holds the validator's tunables.
type Config struct {
	WaitTime      time.Duration
	DeepWaitTime  time.Duration
	MinConfidence float64
}

// DefaultConfig returns reasonable defaults for standard-mode validation.
func DefaultConfig() Config {
	return Config{
		WaitTime:      5 * time.Second,
		DeepWaitTime:  15 * time.Second,
		MinConfidence: 0.7,
	}
}

// Result is the validator's verdict.
type Result struct {
	Valid      bool
	Confidence float64
	Reason     string
}

// Validator fuses gossip peer-count, witness signature depth, and elapsed
// wait into an accept/reject decision.
type Validator struct {
	cfg    Config
	gossip peerCounter
}

// peerCounter is the narrow slice of the gossip engine the validator
// actually calls: checking propagation and recovering total peer count.
// Kept as an unexported interface so tests can fake it without depending
// on the concrete gossip.Engine.
type peerCounter interface {
	CheckNullifier(nullifier [32]byte) float64
	TotalPeers() int
}

// New constructs a Validator against a live gossip view.
func New(cfg Config, gossip peerCounter) *Validator {
	return &Validator{cfg: cfg, gossip: gossip}
}

// Validate waits according to mode, then decides whether nullifier's
// transfer should be accepted. The wait is cancellable via ctx.
func (v *Validator) Validate(ctx context.Context, mode Mode, nullifier [32]byte, proof witness.Attestation) (Result, error) {
	start := time.Now()

	wait := time.Duration(0)
	switch mode {
	case ModeStandard:
		wait = v.cfg.WaitTime
	case ModeDeep:
		wait = v.cfg.DeepWaitTime
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	elapsed := time.Since(start)
	fraction := v.gossip.CheckNullifier(nullifier)
	totalPeers := v.gossip.TotalPeers()
	absolutePeers := int(fraction * float64(totalPeers))

	confidence := scorer.Confidence(scorer.Evidence{
		GossipPeers:  absolutePeers,
		WitnessDepth: proof.Depth(),
		WaitTime:     elapsed,
	})

	threshold := v.cfg.MinConfidence
	if mode == ModeFast {
		threshold = v.cfg.MinConfidence * 0.5
	}

	if confidence < threshold {
		log.Debugf("nullifier %x rejected: confidence %.3f below threshold %.3f", nullifier, confidence, threshold)
		return Result{
			Valid:      false,
			Confidence: confidence,
			Reason:     "confidence below threshold",
		}, nil
	}

	if mode == ModeDeep && proof.Depth() < DeepMinWitnessDepth {
		log.Debugf("nullifier %x rejected: deep mode witness depth %d below %d", nullifier, proof.Depth(), DeepMinWitnessDepth)
		return Result{
			Valid:      false,
			Confidence: confidence,
			Reason:     "deep mode requires witness depth >= 5",
		}, nil
	}

	log.Debugf("nullifier %x accepted with confidence %.3f", nullifier, confidence)
	return Result{
		Valid:      true,
		Confidence: confidence,
		Reason:     "confidence meets threshold",
	}, nil
}
