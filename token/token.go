// Package token implements the mint -> transfer -> receive lifecycle of a
// single bearer token, enforcing at-most-once local spend. The
// authoritative, global double-spend guarantee lives in the gossip
// nullifier mesh, not here: a malicious holder can always construct a
// second transfer with independent local state, which is exactly why
// Transfer's local Spent flag is a courtesy, not a security boundary.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/go-errors/errors"
	"github.com/nullmesh/nullmesh/gossip"
	"github.com/nullmesh/nullmesh/issuer"
	"github.com/nullmesh/nullmesh/voprf"
	"github.com/nullmesh/nullmesh/witness"
	"golang.org/x/crypto/hkdf"
)

func hexID(nullifier [32]byte) string {
	return hex.EncodeToString(nullifier[:])
}

// ErrAlreadySpent is returned by Transfer when the local token has already
// been spent once.
var ErrAlreadySpent = errors.New("token: already spent")

// nullifierInfo and ownerInfo are the HKDF info strings used to
// domain-separate the two distinct derivations this package performs from
// a token's secret material, so neither derivation can be replayed as the
// other.
const (
	nullifierInfo = "nullmesh/nullifier/v1"
	ownerInfo     = "nullmesh/owner-binding/v1"
)

// Token is the local bearer state for a single VOPRF-issued credential.
//
// Invariant: Spent transitions false -> true at most once, locally.
type Token struct {
	ID          string
	Amount      uint64
	VOPRFToken  []byte
	MintContext []byte
	Spent       bool
	OwnerSecret []byte
}

// TransferPackage is the immutable payload handed to a recipient. It
// carries the bearer credential itself (VOPRFToken and the MintContext it
// was issued under) so the recipient can independently re-verify the
// credential's DLEQ proof without trusting the sender's word for it.
type TransferPackage struct {
	Nullifier      [32]byte
	Commitment     [32]byte
	Proof          witness.Attestation
	OwnershipProof []byte
	VOPRFToken     []byte
	MintContext    []byte
}

// Mint obtains a fresh VOPRF-issued token from issuer and returns a local
// bearer object with Spent=false.
func Mint(ctx context.Context, id string, amount uint64, iss issuer.Client) (*Token, error) {
	ownerSecret := make([]byte, 32)
	if _, err := rand.Read(ownerSecret); err != nil {
		return nil, err
	}

	mintCtx := []byte("nullmesh/mint/v1:" + id)
	blinded, state, err := voprf.Blind(ownerSecret, mintCtx)
	if err != nil {
		return nil, err
	}

	raw, err := iss.IssueToken(ctx, blinded, mintCtx)
	if err != nil {
		return nil, err
	}

	pubKey, err := iss.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	verified, err := voprf.Finalize(state, raw, pubKey, mintCtx)
	if err != nil {
		return nil, err
	}

	log.Debugf("minted token %s amount=%d", id, amount)

	return &Token{
		ID:          id,
		Amount:      amount,
		VOPRFToken:  verified,
		MintContext: mintCtx,
		Spent:       false,
		OwnerSecret: ownerSecret,
	}, nil
}

// deriveNullifier computes H(tokenSecret || recipientPublicKey), domain
// separated via HKDF-SHA256 so it can never collide with deriveOwnerBinding's
// output even when both start from the same secret material.
func deriveNullifier(ownerSecret, recipientPubKey []byte) ([32]byte, error) {
	var out [32]byte
	kdf := hkdf.New(sha256.New, ownerSecret, recipientPubKey, []byte(nullifierInfo))
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, err
	}
	return out, nil
}

// deriveOwnerBinding derives the receiving owner's new binding secret from
// their own secret material, domain separated from the nullifier
// derivation above.
func deriveOwnerBinding(recipientSecret []byte, nullifier [32]byte) ([]byte, error) {
	out := make([]byte, 32)
	kdf := hkdf.New(sha256.New, recipientSecret, nullifier[:], []byte(ownerInfo))
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer spends t, publishing its nullifier to the gossip mesh so
// recipients can observe propagation before accepting the transfer.
func (t *Token) Transfer(ctx context.Context, recipientPubKey []byte, w witness.Client, g *gossip.Engine) (TransferPackage, error) {
	if t.Spent {
		return TransferPackage{}, ErrAlreadySpent
	}

	nullifier, err := deriveNullifier(t.OwnerSecret, recipientPubKey)
	if err != nil {
		return TransferPackage{}, err
	}

	var commitment [32]byte
	if _, err := rand.Read(commitment[:]); err != nil {
		return TransferPackage{}, err
	}

	attestation, err := w.Attest(ctx, nullifier, commitment)
	if err != nil {
		return TransferPackage{}, err
	}

	t.Spent = true

	if err := g.Publish(ctx, nullifier, attestation); err != nil {
		// A local double-spend attempt is surfaced immediately to the
		// caller; t.Spent stays true regardless, since the token really
		// was spent once already.
		log.Errorf("publish of nullifier %x for token %s rejected: %v", nullifier, t.ID, err)
		return TransferPackage{}, err
	}

	log.Debugf("token %s transferred, nullifier %x published", t.ID, nullifier)

	return TransferPackage{
		Nullifier:   nullifier,
		Commitment:  commitment,
		Proof:       attestation,
		VOPRFToken:  t.VOPRFToken,
		MintContext: t.MintContext,
	}, nil
}

// ErrUnverifiedTransfer is returned by Receive when gossip has not yet
// seen any report of pkg.Nullifier: a sender that actually called
// Transfer would have published it, so silence here means the package
// either never went through Transfer or hasn't propagated at all yet.
var ErrUnverifiedTransfer = errors.New("token: nullifier has no corroborating gossip reports")

// Receive verifies pkg's attestation and the VOPRF structure of the
// bearer credential it carries, confirms gossip has seen the nullifier
// propagate at all, derives the new owner binding, and returns a received
// token. It does not itself run the confidence scorer or wait for
// propagation to deepen — that is the validator's job; by the time
// Receive is called the caller has already decided to accept the
// transfer and just needs the credential materialized into local state.
func Receive(ctx context.Context, pkg TransferPackage, recipientSecret []byte, iss issuer.Client, w witness.Client, g *gossip.Engine) (*Token, error) {
	ok, err := w.Verify(ctx, pkg.Nullifier, pkg.Proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warnf("rejected incoming transfer for nullifier %x: attestation failed verification", pkg.Nullifier)
		return nil, errors.New("token: attestation failed verification on receive")
	}

	pubKey, err := iss.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	if err := voprf.VerifyToken(pkg.VOPRFToken, pubKey, pkg.MintContext); err != nil {
		log.Warnf("rejected incoming transfer for nullifier %x: bearer credential invalid: %v", pkg.Nullifier, err)
		return nil, err
	}

	if g.CheckNullifier(pkg.Nullifier) <= 0 {
		log.Warnf("rejected incoming transfer for nullifier %x: not observed anywhere in gossip", pkg.Nullifier)
		return nil, ErrUnverifiedTransfer
	}

	ownerBinding, err := deriveOwnerBinding(recipientSecret, pkg.Nullifier)
	if err != nil {
		return nil, err
	}

	log.Debugf("received token for nullifier %x", pkg.Nullifier)

	return &Token{
		ID:          hexID(pkg.Nullifier),
		VOPRFToken:  pkg.VOPRFToken,
		MintContext: pkg.MintContext,
		Spent:       false,
		OwnerSecret: ownerBinding,
	}, nil
}
