package nullmesh

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-errors/errors"
	"github.com/nullmesh/nullmesh/gossip"
	"github.com/nullmesh/nullmesh/issuer"
	"github.com/nullmesh/nullmesh/nullifierstore"
	"github.com/nullmesh/nullmesh/reputation"
	"github.com/nullmesh/nullmesh/token"
	"github.com/nullmesh/nullmesh/transport"
	"github.com/nullmesh/nullmesh/validator"
	"github.com/nullmesh/nullmesh/witness"
)

// Node is the daemon's central wiring point. It owns the gossip engine and
// the transfer validator, and accepts inbound peer connections the way
// server.go's listener/addPeer/removePeer accepted lnd peer connections.
type Node struct {
	started  int32 // atomic
	shutdown int32 // atomic

	cfg *Config

	store   *nullifierstore.Store
	ledger  *reputation.Ledger
	gossip  *gossip.Engine
	valid   *validator.Validator
	witness witness.Client
	issuer  issuer.Client

	listeners []net.Listener

	mu    sync.Mutex
	peers map[string]*transport.TCPPeer

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewNode constructs a node from cfg, wiring a fresh gossip engine and
// validator against w and (optionally) iss. It binds every listen address
// but does not accept connections; call Start for that.
func NewNode(cfg *Config, w witness.Client, iss issuer.Client) (*Node, error) {
	store := nullifierstore.New()
	ledger := reputation.New(cfg.Gossip.PeerScoreThreshold)

	g, err := gossip.New(cfg.Gossip, store, ledger, w, iss)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(cfg.ListenAddrs))
	for _, addr := range cfg.ListenAddrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, errors.Errorf("unable to listen on %s: %v", addr, err)
		}
		listeners = append(listeners, l)
	}

	return &Node{
		cfg:       cfg,
		store:     store,
		ledger:    ledger,
		gossip:    g,
		valid:     validator.New(cfg.Validator, g),
		witness:   w,
		issuer:    iss,
		listeners: listeners,
		peers:     make(map[string]*transport.TCPPeer),
		quit:      make(chan struct{}),
	}, nil
}

// Start starts every listener's accept loop. Calling Start twice is a no-op.
func (n *Node) Start() error {
	if atomic.AddInt32(&n.started, 1) != 1 {
		return nil
	}
	log.Infof("starting node with %d listener(s)", len(n.listeners))
	for _, l := range n.listeners {
		n.wg.Add(1)
		go n.acceptLoop(l)
	}
	return nil
}

// Stop closes every listener, disconnects every peer, and tears down the
// gossip engine's pruner. It blocks until all accept loops have exited.
func (n *Node) Stop() error {
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		return nil
	}
	log.Infof("stopping node")

	for _, l := range n.listeners {
		if err := l.Close(); err != nil {
			log.Errorf("error closing listener: %v", err)
		}
	}
	close(n.quit)
	n.wg.Wait()

	n.mu.Lock()
	peers := make([]*transport.TCPPeer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()
	for _, p := range peers {
		p.Disconnect()
	}

	n.gossip.Destroy()
	return nil
}

// WaitForShutdown blocks until every accept loop has exited.
func (n *Node) WaitForShutdown() {
	n.wg.Wait()
}

func (n *Node) acceptLoop(l net.Listener) {
	defer n.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-n.quit:
				return
			default:
				log.Errorf("accept error on %s: %v", l.Addr(), err)
				return
			}
		}
		n.addPeer(conn)
	}
}

func (n *Node) addPeer(conn net.Conn) {
	id := conn.RemoteAddr().String()
	p := transport.NewTCPPeer(id, conn)

	n.mu.Lock()
	n.peers[id] = p
	n.mu.Unlock()

	if subnetWarning := n.gossip.AddPeer(p); subnetWarning {
		log.Warnf("peer %s shares a subnet with %d+ existing peers", id,
			reputation.DefaultMinSubnetWarning)
	}

	go func() {
		<-p.Done()
		n.removePeer(id)
	}()
}

// Gossip returns the node's gossip engine, for a caller that wants to
// mint/transfer/receive tokens through it (see the token package).
func (n *Node) Gossip() *gossip.Engine { return n.gossip }

// Validator returns the node's transfer validator.
func (n *Node) Validator() *validator.Validator { return n.valid }

// ReceiveTransfer materializes an incoming transfer package into a local
// token through the node's own witness/issuer clients and gossip engine,
// the counterpart to whatever produced pkg via (*token.Token).Transfer.
func (n *Node) ReceiveTransfer(ctx context.Context, pkg token.TransferPackage, recipientSecret []byte) (*token.Token, error) {
	if n.issuer == nil {
		return nil, errors.New("node: no issuer client configured, cannot verify bearer credential")
	}
	return token.Receive(ctx, pkg, recipientSecret, n.issuer, n.witness, n.gossip)
}

// removePeer tears down bookkeeping for a peer that disconnected on its own
// (e.g. the reputation ledger scored it out, or the remote end hung up).
func (n *Node) removePeer(id string) {
	n.mu.Lock()
	delete(n.peers, id)
	n.mu.Unlock()
	n.gossip.RemovePeer(id)
}

// Connect dials addr and registers the resulting connection as a peer, the
// outbound counterpart to acceptLoop.
func (n *Node) Connect(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	n.addPeer(conn)
	return nil
}
