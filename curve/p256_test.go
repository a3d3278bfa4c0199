package curve

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestHashToCurveDeterministic(t *testing.T) {
	input := []byte("token-input-1")
	ctx := []byte("nullmesh-test")

	p1 := HashToCurve(input, ctx)
	p2 := HashToCurve(input, ctx)

	e1, err := EncodePoint(p1)
	if err != nil {
		t.Fatalf("encode p1: %v", err)
	}
	e2, err := EncodePoint(p2)
	if err != nil {
		t.Fatalf("encode p2: %v", err)
	}
	if !bytes.Equal(e1, e2) {
		t.Fatalf("hashToCurve not deterministic: %x != %x", e1, e2)
	}
}

func TestHashToCurveContextChangesOutput(t *testing.T) {
	input := []byte("token-input-1")

	p1 := HashToCurve(input, []byte("ctx-a"))
	p2 := HashToCurve(input, []byte("ctx-b"))

	e1, _ := EncodePoint(p1)
	e2, _ := EncodePoint(p2)
	if bytes.Equal(e1, e2) {
		t.Fatalf("differing context produced identical points")
	}
}

func TestPointEncodeDecodeRoundTrip(t *testing.T) {
	s, err := RandomScalar(rand.Reader)
	if err != nil {
		t.Fatalf("random scalar: %v", err)
	}
	p := ScalarBaseMul(s)

	enc, err := EncodePoint(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(enc) != CompressedPointLen {
		t.Fatalf("expected %d bytes, got %d", CompressedPointLen, len(enc))
	}

	dec, err := DecodePoint(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !p.IsEqual(dec) {
		t.Fatalf("decoded point does not match original")
	}
}

func TestScalarArithmetic(t *testing.T) {
	a, _ := RandomScalar(rand.Reader)
	b, _ := RandomScalar(rand.Reader)

	sum := ScalarAdd(a, b)
	diff := ScalarSub(sum, b)
	if !diff.IsEqual(a) {
		t.Fatalf("(a+b)-b != a")
	}

	inv := ScalarInvert(a)
	one := ScalarMulMod(a, inv)
	expectedOne := Group.NewScalar().SetUint64(1)
	if !one.IsEqual(expectedOne) {
		t.Fatalf("a * a^-1 != 1")
	}
}

func TestDecodePointRejectsBadLength(t *testing.T) {
	if _, err := DecodePoint([]byte{0x02, 0x03}); err == nil {
		t.Fatalf("expected error for short input")
	}
}
