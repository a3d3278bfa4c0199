// Package issuer defines the issuer (a.k.a. Freebird) collaborator
// contract: the external VOPRF-issuing and ownership-proof-verifying
// service. Its implementation is an HTTP client out of scope for this
// module; this package carries only the interface the token lifecycle and
// gossip's optional ownership-proof check depend on.
package issuer

import "context"

// Client is the issuer collaborator's contract.
type Client interface {
	// IssueToken evaluates the VOPRF on a client-blinded input and
	// returns the 130-byte token response (A || B || c || s).
	IssueToken(ctx context.Context, blinded []byte, context_ []byte) ([]byte, error)

	// PublicKey returns the issuer's SEC1-compressed P-256 VOPRF public
	// key.
	PublicKey(ctx context.Context) ([]byte, error)

	// VerifyOwnershipProof checks an optional proof binding a nullifier
	// to a claimed owner, used by gossip admission when
	// RequireOwnershipProof is configured.
	VerifyOwnershipProof(ctx context.Context, proof []byte, nullifier [32]byte) (bool, error)
}
