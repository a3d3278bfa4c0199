// Package voprf implements the client side of a verifiable oblivious
// pseudorandom function over P-256: blind an input, send it to the issuer,
// and finalize the issuer's response into an unforgeable bearer token after
// checking its DLEQ proof.
package voprf

import (
	"crypto/rand"

	"github.com/cloudflare/circl/group"
	"github.com/go-errors/errors"
	"github.com/nullmesh/nullmesh/curve"
)

// TokenLen is the wire length of a finalized VOPRF token: 33-byte A,
// 33-byte B, 32-byte c, 32-byte s.
const TokenLen = 2*curve.CompressedPointLen + 2*curve.ScalarLen

var (
	// ErrInvalidTokenLength is returned by Finalize when the issuer's
	// response is not exactly TokenLen bytes, or when one of its points or
	// scalars, or the issuer public key, does not decode.
	ErrInvalidTokenLength = errors.New("voprf: invalid token length")

	// ErrInvalidDleqProof is returned by Finalize when the DLEQ proof
	// bundled with the token fails verification.
	ErrInvalidDleqProof = errors.New("voprf: invalid dleq proof")
)

// State is the blinding state retained between Blind and Finalize. It MUST
// NOT be persisted or reused across tokens: r is the secret blinding
// factor.
type State struct {
	r group.Scalar
	P group.Element
}

// Blind computes P = hashToCurve(input, context), samples a uniform
// blinding scalar r, and returns A = P*r for transmission to the issuer.
func Blind(input, context []byte) (blinded []byte, state State, err error) {
	r, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		return nil, State{}, err
	}
	p := curve.HashToCurve(input, context)
	a := curve.ScalarMul(p, r)

	enc, err := curve.EncodePoint(a)
	if err != nil {
		return nil, State{}, err
	}
	return enc, State{r: r, P: p}, nil
}

// decodeAndVerify parses a 130-byte token as A || B || c || s and checks
// its DLEQ proof against issuerPubKey and context, without requiring any
// blinding state. Shared by Finalize (right after issuance) and
// VerifyToken (re-checking a bearer credential that already changed
// hands).
func decodeAndVerify(token []byte, issuerPubKey []byte, context []byte) error {
	if len(token) != TokenLen {
		return ErrInvalidTokenLength
	}

	off := 0
	aBytes := token[off : off+curve.CompressedPointLen]
	off += curve.CompressedPointLen
	bBytes := token[off : off+curve.CompressedPointLen]
	off += curve.CompressedPointLen
	cBytes := token[off : off+curve.ScalarLen]
	off += curve.ScalarLen
	sBytes := token[off : off+curve.ScalarLen]

	a, err := curve.DecodePoint(aBytes)
	if err != nil {
		return ErrInvalidTokenLength
	}
	b, err := curve.DecodePoint(bBytes)
	if err != nil {
		return ErrInvalidTokenLength
	}
	y, err := curve.DecodePoint(issuerPubKey)
	if err != nil {
		return ErrInvalidTokenLength
	}
	c, err := curve.DecodeScalar(cBytes)
	if err != nil {
		return ErrInvalidTokenLength
	}
	s, err := curve.DecodeScalar(sBytes)
	if err != nil {
		return ErrInvalidTokenLength
	}

	g := curve.Group.Generator()
	if !VerifyDLEQ(g, y, a, b, c, s, context) {
		return ErrInvalidDleqProof
	}
	return nil
}

// Finalize parses the issuer's 130-byte response as A || B || c || s,
// verifies the DLEQ proof that the issuer evaluated B with the same key
// whose public commitment is issuerPubKey, and returns the verified token
// bytes unchanged as the bearer credential.
func Finalize(state State, token []byte, issuerPubKey []byte, context []byte) ([]byte, error) {
	if err := decodeAndVerify(token, issuerPubKey, context); err != nil {
		log.Warnf("rejected issuer token: %v", err)
		return nil, err
	}

	out := make([]byte, len(token))
	copy(out, token)
	return out, nil
}

// VerifyToken re-checks an already-finalized bearer credential's DLEQ
// proof against issuerPubKey and context, without the original blinding
// state. Used after a token changes hands, when the holder only has the
// credential bytes themselves.
func VerifyToken(token []byte, issuerPubKey []byte, context []byte) error {
	if err := decodeAndVerify(token, issuerPubKey, context); err != nil {
		log.Warnf("bearer credential failed structural verification: %v", err)
		return err
	}
	return nil
}
