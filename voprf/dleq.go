package voprf

import (
	"bytes"
	"crypto/sha256"

	"github.com/cloudflare/circl/group"
	"github.com/nullmesh/nullmesh/curve"
)

// dleqDST is the fixed prefix for the DLEQ transcript domain separation
// tag, distinguishing this proof from any other Fiat-Shamir transcript
// that might hash over the same curve points.
const dleqDST = "DLEQ-P256-v1"

// VerifyDLEQ checks the Chaum-Pedersen, Fiat-Shamir-transformed proof that
// log_G(Y) == log_A(B), i.e. that the same private key produced the
// issuer's public key Y and the blinded evaluation B of A.
//
// The transcript byte layout is part of the wire contract and must not be
// reordered: a 4-byte big-endian DST length, the DST itself, then the
// compressed encodings of G, Y, A, B, T1, T2 in that exact order.
func VerifyDLEQ(g, y, a, b group.Element, c, s group.Scalar, context []byte) bool {
	// T1 = s*G - c*Y
	t1 := curve.PointSub(curve.ScalarBaseMul(s), curve.ScalarMul(y, c))
	// T2 = s*A - c*B
	t2 := curve.PointSub(curve.ScalarMul(a, s), curve.ScalarMul(b, c))

	transcript, err := buildTranscript(g, y, a, b, t1, t2, context)
	if err != nil {
		return false
	}

	digest := sha256.Sum256(transcript)
	cPrime, err := curve.DecodeScalar(curve.ReduceScalarBytes(digest[:]))
	if err != nil {
		return false
	}

	return c.IsEqual(cPrime)
}

// buildTranscript assembles the DLEQ transcript in the fixed byte layout
// VerifyDLEQ documents above.
func buildTranscript(g, y, a, b, t1, t2 group.Element, context []byte) ([]byte, error) {
	dst := append([]byte(dleqDST), context...)

	var buf bytes.Buffer
	if err := curve.WriteLengthPrefixed(&buf, dst); err != nil {
		return nil, err
	}

	for _, p := range []group.Element{g, y, a, b, t1, t2} {
		enc, err := curve.EncodePoint(p)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}

	return buf.Bytes(), nil
}
