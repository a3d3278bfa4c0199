package nullmesh

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"net"
	"testing"
	"time"

	"github.com/cloudflare/circl/group"
	"github.com/nullmesh/nullmesh/curve"
	"github.com/nullmesh/nullmesh/token"
	"github.com/nullmesh/nullmesh/voprf"
	"github.com/nullmesh/nullmesh/witness"
)

type nopWitness struct{}

func (nopWitness) Verify(ctx context.Context, nullifier [32]byte, proof witness.Attestation) (bool, error) {
	return true, nil
}

func (nopWitness) Attest(ctx context.Context, nullifier [32]byte, commitment [32]byte) (witness.Attestation, error) {
	return witness.Attestation{
		Timestamp:  time.Now().UnixMilli(),
		WitnessIDs: []string{"w1"},
		Signatures: [][]byte{[]byte("sig1")},
	}, nil
}

// fakeIssuer is a minimal in-memory VOPRF issuer, mirroring token's own
// test fake, used here to drive Node.ReceiveTransfer end to end.
type fakeIssuer struct{ y group.Scalar }

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	y, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		t.Fatalf("issuer keygen: %v", err)
	}
	return &fakeIssuer{y: y}
}

func (f *fakeIssuer) IssueToken(ctx context.Context, blinded []byte, context_ []byte) ([]byte, error) {
	a, err := curve.DecodePoint(blinded)
	if err != nil {
		return nil, err
	}
	b := curve.ScalarMul(a, f.y)

	k, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	t1 := curve.ScalarBaseMul(k)
	t2 := curve.ScalarMul(a, k)

	g := curve.Group.Generator()
	y := curve.ScalarBaseMul(f.y)

	c, s, err := proveDLEQ(g, y, a, b, t1, t2, k, f.y, context_)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, voprf.TokenLen)
	for _, p := range []group.Element{a, b} {
		enc, err := curve.EncodePoint(p)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	for _, sc := range []group.Scalar{c, s} {
		enc, err := curve.EncodeScalar(sc)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

func (f *fakeIssuer) PublicKey(ctx context.Context) ([]byte, error) {
	return curve.EncodePoint(curve.ScalarBaseMul(f.y))
}

func (f *fakeIssuer) VerifyOwnershipProof(ctx context.Context, proof []byte, nullifier [32]byte) (bool, error) {
	return true, nil
}

// proveDLEQ is an honest Chaum-Pedersen prover: T1=kG, T2=kA,
// c=H(transcript) mod n, s=k+c*y.
func proveDLEQ(g, y, a, b, t1, t2 group.Element, k, secret group.Scalar, context []byte) (c, s group.Scalar, err error) {
	dst := append([]byte("DLEQ-P256-v1"), context...)

	var buf bytes.Buffer
	if err := curve.WriteLengthPrefixed(&buf, dst); err != nil {
		return nil, nil, err
	}
	for _, p := range []group.Element{g, y, a, b, t1, t2} {
		enc, err := curve.EncodePoint(p)
		if err != nil {
			return nil, nil, err
		}
		buf.Write(enc)
	}

	digest := sha256.Sum256(buf.Bytes())
	c, err = curve.DecodeScalar(curve.ReduceScalarBytes(digest[:]))
	if err != nil {
		return nil, nil, err
	}
	s = curve.ScalarAdd(k, curve.ScalarMulMod(c, secret))
	return c, s, nil
}

func freeListenAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestNodeAcceptsAndTracksInboundPeer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddrs = []string{freeListenAddr(t)}

	n, err := NewNode(cfg, nopWitness{}, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	conn, err := net.Dial("tcp", cfg.ListenAddrs[0])
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.Gossip().GetStats().ConnectedPeers >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected an inbound connection to register as a connected peer")
}

func TestNodeStopIsIdempotentAndClosesListeners(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddrs = []string{freeListenAddr(t)}

	n, err := NewNode(cfg, nopWitness{}, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if _, err := net.Dial("tcp", cfg.ListenAddrs[0]); err == nil {
		t.Fatalf("expected listener to be closed after Stop")
	}
}

func TestNodeReceiveTransferWiresTokenPackage(t *testing.T) {
	iss := newFakeIssuer(t)
	cfg := DefaultConfig()
	cfg.ListenAddrs = []string{freeListenAddr(t)}

	n, err := NewNode(cfg, nopWitness{}, iss)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	tok, err := token.Mint(context.Background(), "node-test-tok", 10, iss)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	recipientPub := []byte("recipient-public-key-bytes")
	pkg, err := tok.Transfer(context.Background(), recipientPub, nopWitness{}, n.Gossip())
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	recipientSecret := []byte("recipient-secret-material-xxxxx")
	received, err := n.ReceiveTransfer(context.Background(), pkg, recipientSecret)
	if err != nil {
		t.Fatalf("receive transfer: %v", err)
	}
	if received.ID == "" {
		t.Fatalf("expected a populated received token ID")
	}
}

func TestNodeReceiveTransferRequiresIssuer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddrs = []string{freeListenAddr(t)}

	n, err := NewNode(cfg, nopWitness{}, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	if _, err := n.ReceiveTransfer(context.Background(), token.TransferPackage{}, nil); err == nil {
		t.Fatalf("expected ReceiveTransfer to fail without a configured issuer")
	}
}
