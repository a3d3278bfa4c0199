// Package gossip implements the nullifier epidemic broadcast fabric: an
// admission pipeline that layers timestamp validation, witness-proof
// verification, optional ownership-proof binding, and peer-reputation
// penalties on top of a bounded record store, plus the publish/broadcast
// path that feeds it.
package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"
	"github.com/nullmesh/nullmesh/issuer"
	"github.com/nullmesh/nullmesh/nullifierstore"
	"github.com/nullmesh/nullmesh/reputation"
	"github.com/nullmesh/nullmesh/transport"
	"github.com/nullmesh/nullmesh/witness"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxNullifiers        = 100_000
	DefaultPruneInterval        = time.Hour
	DefaultMaxNullifierAge      = 576 * 24 * time.Hour
	DefaultPeerScoreThreshold   = reputation.DefaultThreshold
	DefaultMaxTimestampFuture   = 5 * time.Second
	defaultPeerRateLimit        = 50 // admissions/sec
	defaultPeerRateBurst        = 100
)

// ErrDoubleSpendLocal is returned by Publish when the caller tries to
// republish a nullifier this node already knows about.
var ErrDoubleSpendLocal = errors.New("gossip: nullifier already known locally (double spend)")

// ErrMisconfigured is returned by New for a construction-time
// configuration error.
var ErrMisconfigured = errors.New("gossip: requireOwnershipProof set without an issuer client")

// Config holds the gossip engine's tunables.
type Config struct {
	MaxNullifiers         int
	PruneInterval         time.Duration
	MaxNullifierAge       time.Duration
	PeerScoreThreshold    int
	MaxTimestampFuture    time.Duration
	RequireOwnershipProof bool
}

// DefaultConfig returns reasonable tunables for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		MaxNullifiers:      DefaultMaxNullifiers,
		PruneInterval:      DefaultPruneInterval,
		MaxNullifierAge:    DefaultMaxNullifierAge,
		PeerScoreThreshold: DefaultPeerScoreThreshold,
		MaxTimestampFuture: DefaultMaxTimestampFuture,
	}
}

// ReceiveHandler is invoked every time a nullifier is accepted, whether
// via a local Publish or a remote OnReceive.
type ReceiveHandler func(nullifier [32]byte, proof witness.Attestation)

// Stats is a point-in-time snapshot returned by GetStats.
type Stats struct {
	KnownNullifiers int
	ConnectedPeers  int
}

// Engine is the nullifier gossip engine. It exclusively owns the record
// store and the reputation ledger: no other component mutates either.
type Engine struct {
	cfg     Config
	store   *nullifierstore.Store
	ledger  *reputation.Ledger
	witness witness.Client
	issuer  issuer.Client
	now     func() time.Time

	// admissionMu serializes the check-then-insert critical section of
	// OnReceive (duplicate check through accept) for a given nullifier,
	// so two concurrent reports of the same nullifier can't both observe
	// "not yet known" and double-count it. Broadcast fan-out and
	// witness/ownership verification run outside it.
	admissionMu sync.Mutex

	mu        sync.RWMutex
	peers     map[string]transport.Peer
	limiters  map[string]*rate.Limiter
	handler   ReceiveHandler

	cancelPruner context.CancelFunc
	destroyed    bool
}

// New constructs a gossip engine. It fails fast if cfg.RequireOwnershipProof
// is set without an issuer client, since admission would otherwise have no
// way to check ownership proofs it's configured to require.
func New(cfg Config, store *nullifierstore.Store, ledger *reputation.Ledger, w witness.Client, iss issuer.Client) (*Engine, error) {
	if cfg.RequireOwnershipProof && iss == nil {
		return nil, ErrMisconfigured
	}
	e := &Engine{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		witness:  w,
		issuer:   iss,
		now:      time.Now,
		peers:    make(map[string]transport.Peer),
		limiters: make(map[string]*rate.Limiter),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelPruner = cancel
	store.StartPruner(ctx, cfg.PruneInterval, cfg.MaxNullifierAge, cfg.MaxNullifiers)

	return e, nil
}

// SetReceiveHandler installs the callback invoked on every accepted
// nullifier.
func (e *Engine) SetReceiveHandler(h ReceiveHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// AddPeer registers a connected peer and wires its message handler to
// OnReceive.
func (e *Engine) AddPeer(p transport.Peer) (subnetWarning bool) {
	e.mu.Lock()
	e.peers[p.ID()] = p
	e.limiters[p.ID()] = rate.NewLimiter(rate.Limit(defaultPeerRateLimit), defaultPeerRateBurst)
	e.mu.Unlock()

	p.SetMessageHandler(func(raw []byte, peerID string) {
		_ = e.OnReceive(context.Background(), raw, peerID)
	})

	return e.ledger.AddPeer(p.ID(), p.RemoteAddress())
}

// RemovePeer disconnects bookkeeping for peerID without touching the
// transport itself.
func (e *Engine) RemovePeer(peerID string) {
	e.mu.Lock()
	delete(e.peers, peerID)
	delete(e.limiters, peerID)
	e.mu.Unlock()
	e.ledger.RemovePeer(peerID)
}

func (e *Engine) connectedPeers() []transport.Peer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]transport.Peer, 0, len(e.peers))
	for _, p := range e.peers {
		if p.IsConnected() {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) totalPeers() int {
	return e.TotalPeers()
}

// TotalPeers returns the number of registered peers, connected or not —
// the denominator CheckNullifier's fractional reading and the validator's
// absolute-reporter-count reconstruction both use.
func (e *Engine) TotalPeers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.peers)
}

// Publish inserts a freshly minted nullifier observation and broadcasts
// it. It fails ErrDoubleSpendLocal if this node already knows the
// nullifier. Individual peer broadcast failures are logged and do not
// fail the call: the nullifier is already recorded locally.
func (e *Engine) Publish(ctx context.Context, nullifier [32]byte, proof witness.Attestation) error {
	if e.isDestroyed() {
		return nil
	}

	if !e.store.InsertIfAbsent(nullifier, proof, e.now()) {
		return ErrDoubleSpendLocal
	}

	e.broadcast(ctx, Message{
		Kind:      KindNullifier,
		Nullifier: nullifier,
		Proof:     proof,
		Timestamp: proof.Timestamp,
	}, "")

	e.invokeHandler(nullifier, proof)
	return nil
}

// CheckNullifier returns propagation confidence in [0,1]: the record's peer
// count divided by the number of registered peers (TotalPeers, at least 1). This is propagation
// confidence, not a double-spend verdict; the caller (the validator)
// interprets its magnitude.
func (e *Engine) CheckNullifier(nullifier [32]byte) float64 {
	rec, ok := e.store.Get(nullifier)
	if !ok {
		return 0
	}
	total := e.totalPeers()
	if total < 1 {
		total = 1
	}
	confidence := float64(rec.PeerCount) / float64(total)
	if confidence > 1 {
		return 1
	}
	return confidence
}

// GetStats returns a snapshot of engine-wide counters.
func (e *Engine) GetStats() Stats {
	return Stats{
		KnownNullifiers: e.store.Len(),
		ConnectedPeers:  len(e.connectedPeers()),
	}
}

// GetSubnetStats exposes the reputation ledger's subnet-diversity warning
// for a peer about to join, without registering it.
func (e *Engine) GetSubnetStats(remoteAddr string) bool {
	// AddPeer with a throwaway ID would mutate subnet counts; this
	// method is read-only, so it recomputes the predicate through the
	// ledger's exported helper instead of calling AddPeer.
	return e.ledger.PeekSubnetWarning(remoteAddr)
}

// OnReceive runs the admission pipeline (rate limit, decode, timestamp
// window, duplicate check, witness verification, ownership check) on a raw
// framed message received from peerID.
func (e *Engine) OnReceive(ctx context.Context, raw []byte, peerID string) error {
	if e.isDestroyed() {
		return nil
	}

	if lim := e.limiterFor(peerID); lim != nil && !lim.Allow() {
		log.Debugf("dropping message from %s: rate limit exceeded", peerID)
		return nil
	}

	msg, err := decodeMessage(raw)
	if err != nil {
		log.Debugf("dropping malformed message from %s: %v", peerID, err)
		return nil
	}
	if !msg.wellFormed() {
		log.Debugf("dropping malformed message from %s: %s", peerID, spew.Sdump(msg))
		return nil
	}

	now := e.now()
	nowMs := now.UnixMilli()

	// Step 2: timestamp window, evaluated against the witness clock in
	// proof.Timestamp, never the local clock used for FirstSeen.
	if msg.Proof.Timestamp > nowMs+e.cfg.MaxTimestampFuture.Milliseconds() {
		e.disconnectIfNeeded(peerID, reputation.EventFutureTimestamp, now)
		return nil
	}
	if nowMs-msg.Proof.Timestamp > e.cfg.MaxNullifierAge.Milliseconds() {
		e.disconnectIfNeeded(peerID, reputation.EventExpiredTimestamp, now)
		return nil
	}

	e.admissionMu.Lock()
	// Step 3: duplicate check.
	if e.store.Has(msg.Nullifier) {
		e.store.Observe(msg.Nullifier, msg.Proof, now)
		e.admissionMu.Unlock()
		e.disconnectIfNeeded(peerID, reputation.EventDuplicate, now)
		return nil
	}
	e.admissionMu.Unlock()

	// Step 4: witness verification. A genuine suspension point (network
	// or CPU-bound RPC); runs outside admissionMu.
	ok, err := e.witness.Verify(ctx, msg.Nullifier, msg.Proof)
	if err != nil || !ok {
		// A thrown verify is treated the same as an explicit false: an
		// unverifiable attestation is not evidence of anything.
		e.disconnectIfNeeded(peerID, reputation.EventInvalidWitnessProof, now)
		return nil
	}

	// Step 5: optional ownership-proof binding.
	if e.cfg.RequireOwnershipProof {
		if len(msg.OwnershipProof) == 0 {
			e.disconnectIfNeeded(peerID, reputation.EventMissingOwnershipProof, now)
			return nil
		}
		valid, err := e.issuer.VerifyOwnershipProof(ctx, msg.OwnershipProof, msg.Nullifier)
		if err != nil || !valid {
			e.disconnectIfNeeded(peerID, reputation.EventInvalidOwnershipProof, now)
			return nil
		}
	}

	// Step 6: accept. Re-check-and-insert atomically: a concurrent
	// admission of the same nullifier may have won the race while this
	// one was off verifying the witness proof.
	e.admissionMu.Lock()
	inserted := e.store.InsertIfAbsent(msg.Nullifier, msg.Proof, now)
	e.admissionMu.Unlock()

	if !inserted {
		e.store.Observe(msg.Nullifier, msg.Proof, now)
		e.disconnectIfNeeded(peerID, reputation.EventDuplicate, now)
		return nil
	}

	e.disconnectIfNeeded(peerID, reputation.EventValidAccepted, now)
	e.broadcast(ctx, msg, peerID)
	e.invokeHandler(msg.Nullifier, msg.Proof)
	return nil
}

// disconnectIfNeeded applies ev's score delta to peerID and, if the
// ledger says the peer must be dropped, removes it from the engine and
// disconnects its transport.
func (e *Engine) disconnectIfNeeded(peerID string, ev reputation.Event, now time.Time) {
	if peerID == "" {
		return
	}
	if !e.ledger.RecordEvent(peerID, ev, now) {
		return
	}

	e.mu.Lock()
	p, ok := e.peers[peerID]
	delete(e.peers, peerID)
	delete(e.limiters, peerID)
	e.mu.Unlock()

	if ok {
		if err := p.Disconnect(); err != nil {
			log.Debugf("error disconnecting scored-out peer %s: %v", peerID, err)
		}
	}
}

// broadcast fans a message out to every connected peer except excludeID,
// in parallel. Individual send failures are logged and swallowed.
func (e *Engine) broadcast(ctx context.Context, msg Message, excludeID string) {
	framed, err := encodeMessage(msg)
	if err != nil {
		log.Errorf("failed to encode outbound gossip message: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, p := range e.connectedPeers() {
		if p.ID() == excludeID {
			continue
		}
		wg.Add(1)
		go func(p transport.Peer) {
			defer wg.Done()
			if err := p.Send(ctx, framed); err != nil {
				log.Debugf("broadcast to peer %s failed: %v", p.ID(), err)
			}
		}(p)
	}
	wg.Wait()
}

func (e *Engine) invokeHandler(nullifier [32]byte, proof witness.Attestation) {
	e.mu.RLock()
	h := e.handler
	e.mu.RUnlock()
	if h != nil {
		h(nullifier, proof)
	}
}

func (e *Engine) limiterFor(peerID string) *rate.Limiter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limiters[peerID]
}

func (e *Engine) isDestroyed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.destroyed
}

// Destroy stops the pruner and marks the engine as shut down; further
// Publish/OnReceive calls become no-ops for background work, but any
// in-flight call runs to completion.
func (e *Engine) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
	e.cancelPruner()
}
