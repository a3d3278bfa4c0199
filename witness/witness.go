// Package witness defines the witness collaborator contract: the external
// service that timestamps and co-signs a nullifier at spend time. Its
// implementation (the HTTP/RPC client that actually talks to a witness
// quorum) is out of scope for this module; this package carries only the
// interface and wire type gossip and the validator depend on.
package witness

import "context"

// Attestation is a witness-signed record of a nullifier's spend event: an
// ordered list of witness identifiers, one signature per witness, and a
// commitment digest binding it all together.
//
// Invariant: len(Signatures) == len(WitnessIDs). An empty attestation is
// permitted but drives confidence toward zero downstream.
type Attestation struct {
	Timestamp  int64 // milliseconds since epoch, witness clock
	WitnessIDs []string
	Signatures [][]byte
	Hash       [32]byte // digest over nullifier || timestamp || commitment
}

// Depth returns the number of independent witness signatures backing this
// attestation, the evidence the confidence scorer calls WitnessDepth.
func (a Attestation) Depth() int {
	return len(a.Signatures)
}

// Client is the witness collaborator's contract.
type Client interface {
	// Verify checks that proof's signatures and hash are valid over its
	// own timestamp and commitment. A network or CPU-bound call; the
	// gossip admission pipeline treats an error the same as a false
	// result (not accepted).
	Verify(ctx context.Context, nullifier [32]byte, proof Attestation) (bool, error)

	// Attest asks the witness quorum to timestamp and sign a fresh
	// nullifier/commitment pair during a transfer.
	Attest(ctx context.Context, nullifier [32]byte, commitment [32]byte) (Attestation, error)
}
