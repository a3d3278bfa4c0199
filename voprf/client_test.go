package voprf

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/cloudflare/circl/group"
	"github.com/nullmesh/nullmesh/curve"
)

// fakeIssuer plays the role of the issuer/Freebird collaborator for
// tests: it holds the VOPRF private key y, evaluates a blinded input, and
// produces an honest DLEQ proof over the response.
type fakeIssuer struct {
	y group.Scalar
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	y, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		t.Fatalf("issuer keygen: %v", err)
	}
	return &fakeIssuer{y: y}
}

func (f *fakeIssuer) publicKey() group.Element {
	return curve.ScalarBaseMul(f.y)
}

func (f *fakeIssuer) issue(blinded, context []byte) ([]byte, error) {
	a, err := curve.DecodePoint(blinded)
	if err != nil {
		return nil, err
	}
	b := curve.ScalarMul(a, f.y)

	// Honest DLEQ proof: pick random nonce k, T1=kG, T2=kA, c=H(...),
	// s = k + c*y.
	k, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	t1 := curve.ScalarBaseMul(k)
	t2 := curve.ScalarMul(a, k)

	g := curve.Group.Generator()
	y := f.publicKey()

	digest, err := transcriptDigest(g, y, a, b, t1, t2, context)
	if err != nil {
		return nil, err
	}
	c, err := curve.DecodeScalar(curve.ReduceScalarBytes(digest))
	if err != nil {
		return nil, err
	}
	s := curve.ScalarAdd(k, curve.ScalarMulMod(c, f.y))

	out := make([]byte, 0, TokenLen)
	enc, _ := curve.EncodePoint(a)
	out = append(out, enc...)
	enc, _ = curve.EncodePoint(b)
	out = append(out, enc...)
	enc, _ = curve.EncodeScalar(c)
	out = append(out, enc...)
	enc, _ = curve.EncodeScalar(s)
	out = append(out, enc...)
	return out, nil
}

// transcriptDigest mirrors buildTranscript's byte layout so the fake
// issuer in this test produces a proof this package's own verifier
// accepts.
func transcriptDigest(g, y, a, b, t1, t2 group.Element, context []byte) ([]byte, error) {
	transcript, err := buildTranscript(g, y, a, b, t1, t2, context)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(transcript)
	return sum[:], nil
}

func TestVOPRFRoundTrip(t *testing.T) {
	issuer := newFakeIssuer(t)
	ctx := []byte("nullmesh-test-ctx")

	blinded, state, err := Blind([]byte("token-input"), ctx)
	if err != nil {
		t.Fatalf("blind: %v", err)
	}

	token, err := issuer.issue(blinded, ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	pubKey, err := curve.EncodePoint(issuer.publicKey())
	if err != nil {
		t.Fatalf("encode pubkey: %v", err)
	}

	out, err := Finalize(state, token, pubKey, ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(out) != TokenLen {
		t.Fatalf("expected token of length %d, got %d", TokenLen, len(out))
	}
}

func TestVOPRFRejectsBadTokenLength(t *testing.T) {
	issuer := newFakeIssuer(t)
	_, state, _ := Blind([]byte("x"), []byte("ctx"))
	pubKey, _ := curve.EncodePoint(issuer.publicKey())

	_, err := Finalize(state, []byte("too-short"), pubKey, []byte("ctx"))
	if err != ErrInvalidTokenLength {
		t.Fatalf("expected ErrInvalidTokenLength, got %v", err)
	}
}

func TestVOPRFRejectsTamperedProof(t *testing.T) {
	issuer := newFakeIssuer(t)
	ctx := []byte("nullmesh-test-ctx")

	blinded, state, _ := Blind([]byte("token-input"), ctx)
	token, err := issuer.issue(blinded, ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	pubKey, _ := curve.EncodePoint(issuer.publicKey())

	tampered := make([]byte, len(token))
	copy(tampered, token)
	tampered[len(tampered)-1] ^= 0x01 // flip a bit in s

	if _, err := Finalize(state, tampered, pubKey, ctx); err != ErrInvalidDleqProof {
		t.Fatalf("expected ErrInvalidDleqProof, got %v", err)
	}
}
