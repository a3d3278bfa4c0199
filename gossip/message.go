package gossip

import "github.com/nullmesh/nullmesh/witness"

// Kind discriminates gossip wire messages: a tagged sum rather than a bag
// of optional fields. It has one member today, leaving room for future
// gossip message types without widening the admission pipeline's shape
// check.
type Kind uint8

const (
	// KindNullifier is the only message kind this version of the
	// protocol gossips: a nullifier plus its witness attestation.
	KindNullifier Kind = iota
)

// Message is the gossip wire payload.
type Message struct {
	Kind           Kind                 `msgpack:"kind"`
	Nullifier      [32]byte             `msgpack:"nullifier"`
	Proof          witness.Attestation  `msgpack:"proof"`
	Timestamp      int64                `msgpack:"timestamp"`
	OwnershipProof []byte               `msgpack:"ownership_proof,omitempty"`
}

// wellFormed is the admission pipeline's shape check, collapsed into the
// decoder by construction: a Message is a tagged sum, so once it decodes
// to a known Kind both its required fields are structurally present. Only
// the tag itself needs checking.
func (m Message) wellFormed() bool {
	return m.Kind == KindNullifier
}
