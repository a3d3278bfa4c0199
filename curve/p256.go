// Package curve provides the P-256 group primitives the VOPRF client and
// the DLEQ verifier build on: scalar sampling, scalar/point arithmetic, and
// RFC 9380 hash-to-curve.
//
// This package deliberately does not implement its own field or curve
// arithmetic. Rolling a bespoke modular-inverse or SSWU map is exactly the
// kind of mistake that turns into a key-recovery bug years later, so all
// arithmetic is delegated to circl's constant-time P-256 group
// implementation, which already carries RFC 9380 and RFC 9497 support for
// this curve.
package curve

import (
	"encoding/binary"
	"io"
	"math/big"

	"github.com/cloudflare/circl/group"
	"github.com/go-errors/errors"
)

// Group is the P-256 group every nullmesh scalar/point lives in.
var Group = group.P256

// order is the P-256 (secp256r1) group order n.
var order, _ = new(big.Int).SetString(
	"ffffffff00000000ffffffffffffffffbce6faada7179e84f3b9cac2fc632551", 16,
)

// ReduceScalarBytes reduces an arbitrary big-endian byte string modulo the
// curve order n and returns its canonical 32-byte big-endian encoding,
// ready for DecodeScalar. Used to turn a SHA-256 digest into a proof
// challenge scalar for a Chaum-Pedersen/DLEQ proof (c' = SHA-256(transcript) mod n).
func ReduceScalarBytes(b []byte) []byte {
	v := new(big.Int).SetBytes(b)
	v.Mod(v, order)
	out := make([]byte, ScalarLen)
	v.FillBytes(out)
	return out
}

// dstPrefix is the RFC 9380 domain-separation-tag prefix mandated by the
// ciphersuite name P256_XMD:SHA-256_SSWU_RO_. It is exactly 25 bytes.
const dstPrefix = "P256_XMD:SHA-256_SSWU_RO_"

// CompressedPointLen is the SEC1 compressed encoding length for a P-256
// point: 1 prefix byte plus a 32-byte x-coordinate.
const CompressedPointLen = 33

// ScalarLen is the length of a big-endian P-256 scalar encoding.
const ScalarLen = 32

var (
	// ErrInvalidPoint is returned when a byte string does not decode to
	// a valid point on the curve.
	ErrInvalidPoint = errors.New("curve: invalid compressed point encoding")

	// ErrInvalidScalar is returned when a byte string does not decode to
	// a valid scalar.
	ErrInvalidScalar = errors.New("curve: invalid scalar encoding")
)

// RandomScalar samples a scalar uniformly over the curve order, reading
// randomness from rnd.
func RandomScalar(rnd io.Reader) (group.Scalar, error) {
	s := Group.RandomNonZeroScalar(rnd)
	if s == nil {
		return nil, errors.New("curve: failed to sample random scalar")
	}
	return s, nil
}

// ScalarMul returns p*s.
func ScalarMul(p group.Element, s group.Scalar) group.Element {
	return Group.NewElement().Mul(p, s)
}

// ScalarBaseMul returns G*s for the group generator G.
func ScalarBaseMul(s group.Scalar) group.Element {
	return Group.NewElement().MulGen(s)
}

// PointAdd returns a+b.
func PointAdd(a, b group.Element) group.Element {
	return Group.NewElement().Add(a, b)
}

// PointSub returns a-b.
func PointSub(a, b group.Element) group.Element {
	return Group.NewElement().Sub(a, b)
}

// PointNeg returns -p.
func PointNeg(p group.Element) group.Element {
	return Group.NewElement().Neg(p)
}

// EncodePoint returns the 33-byte SEC1 compressed encoding of p.
func EncodePoint(p group.Element) ([]byte, error) {
	enc, err := p.(interface {
		MarshalBinaryCompress() ([]byte, error)
	}).MarshalBinaryCompress()
	if err != nil {
		return nil, err
	}
	if len(enc) != CompressedPointLen {
		return nil, ErrInvalidPoint
	}
	return enc, nil
}

// DecodePoint parses a 33-byte SEC1 compressed point.
func DecodePoint(b []byte) (group.Element, error) {
	if len(b) != CompressedPointLen {
		return nil, ErrInvalidPoint
	}
	p := Group.NewElement()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(ErrInvalidPoint, 0)
	}
	return p, nil
}

// EncodeScalar returns the 32-byte big-endian encoding of s.
func EncodeScalar(s group.Scalar) ([]byte, error) {
	b, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(b) != ScalarLen {
		return nil, ErrInvalidScalar
	}
	return b, nil
}

// DecodeScalar parses a 32-byte big-endian scalar.
func DecodeScalar(b []byte) (group.Scalar, error) {
	if len(b) != ScalarLen {
		return nil, ErrInvalidScalar
	}
	s := Group.NewScalar()
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(ErrInvalidScalar, 0)
	}
	return s, nil
}

// ScalarAdd, ScalarSub, ScalarMulMod, ScalarInvert perform scalar
// arithmetic modulo the curve order.
func ScalarAdd(a, b group.Scalar) group.Scalar { return Group.NewScalar().Add(a, b) }
func ScalarSub(a, b group.Scalar) group.Scalar { return Group.NewScalar().Sub(a, b) }
func ScalarMulMod(a, b group.Scalar) group.Scalar {
	return Group.NewScalar().Mul(a, b)
}
func ScalarInvert(a group.Scalar) group.Scalar { return Group.NewScalar().Inv(a) }

// HashToCurve implements RFC 9380's P256_XMD:SHA-256_SSWU_RO_ suite: the
// domain separation tag is the 25-byte suite name concatenated with the
// caller's context, two field elements are derived from expand_message_xmd
// (SHA-256, b_in_bytes=32, r_in_bytes=64), each is mapped to a curve point
// via simplified SWU with Z = -10, and the two points are added. circl's
// HashToElement performs all of that internally for group.P256; this
// function only assembles the DST RFC 9380 requires.
func HashToCurve(input, context []byte) group.Element {
	dst := make([]byte, 0, len(dstPrefix)+len(context))
	dst = append(dst, []byte(dstPrefix)...)
	dst = append(dst, context...)
	return Group.HashToElement(input, dst)
}

// lengthPrefixed writes a 4-byte big-endian length prefix followed by b, the
// TLV-style framing a Fiat-Shamir transcript needs so distinct fields can't
// be confused by shifting bytes across a boundary.
func lengthPrefixed(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// WriteLengthPrefixed exposes lengthPrefixed to sibling packages that build
// wire transcripts sharing this exact framing (the voprf DLEQ transcript).
func WriteLengthPrefixed(w io.Writer, b []byte) error {
	return lengthPrefixed(w, b)
}
