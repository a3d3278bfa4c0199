// Package scorer fuses gossip propagation, witness depth, and elapsed
// wait into the scalar confidence score the transfer validator compares
// against its threshold.
package scorer

import "time"

// Evidence is the observation set Confidence combines. GossipPeers is the
// absolute number of distinct peers that have reported a nullifier
// (recovered by the caller from the gossip engine's fractional
// CheckNullifier reading times its total registered peers).
type Evidence struct {
	GossipPeers  int
	WitnessDepth int
	WaitTime     time.Duration
}

// Weight caps: peer propagation can contribute at most half of confidence,
// witness depth at most 30%, elapsed wait at most 20%. Kept as plain data
// so the weighting can be retuned without touching the scoring logic.
const (
	peerCap    = 0.5
	witnessCap = 0.3
	timeCap    = 0.2

	peerDivisor    = 100.0
	witnessDivisor = 3.0
	timeDivisorMs  = 10_000.0
)

// Confidence computes peerScore + witnessScore + timeScore, each capped
// independently, for a combined range of [0, 1].
func Confidence(e Evidence) float64 {
	peerScore := min(float64(e.GossipPeers)/peerDivisor, peerCap)
	witnessScore := min(float64(e.WitnessDepth)/witnessDivisor, witnessCap)
	timeScore := min(float64(e.WaitTime.Milliseconds())/timeDivisorMs, timeCap)

	total := peerScore + witnessScore + timeScore
	if total < 0 {
		return 0
	}
	if total > 1 {
		return 1
	}
	return total
}
