package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/go-errors/errors"
)

// maxFrameSize bounds a single inbound frame, guarding against a peer that
// sends a bogus length prefix and tries to make us allocate forever.
const maxFrameSize = 16 << 20

var errFrameTooLarge = errors.New("transport: frame exceeds maxFrameSize")

// TCPPeer is a transport.Peer backed by a plain net.Conn, framing each
// message with a 4-byte big-endian length prefix since TCP carries a byte
// stream, not message boundaries. It mirrors the read/write pump split of
// peer.go's readHandler/writeHandler: one goroutine owns the socket for
// reads, one for writes, and writes are serialized through a channel rather
// than a mutex around Write.
type TCPPeer struct {
	id   string
	conn net.Conn

	sendCh chan []byte
	quit   chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	handler   MessageHandler
	connected bool
}

// NewTCPPeer wraps conn as a connected Peer identified by id and starts its
// read/write pumps. The caller is expected to call SetMessageHandler before
// inbound frames need dispatching; frames that arrive first are dropped.
func NewTCPPeer(id string, conn net.Conn) *TCPPeer {
	p := &TCPPeer{
		id:        id,
		conn:      conn,
		sendCh:    make(chan []byte, 64),
		quit:      make(chan struct{}),
		connected: true,
	}
	p.wg.Add(2)
	go p.readPump()
	go p.writePump()
	return p
}

// Done returns a channel that closes once the peer has disconnected, so a
// caller can reconcile its own bookkeeping without polling IsConnected.
func (p *TCPPeer) Done() <-chan struct{} { return p.quit }

func (p *TCPPeer) ID() string            { return p.id }
func (p *TCPPeer) RemoteAddress() string { return p.conn.RemoteAddr().String() }

func (p *TCPPeer) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *TCPPeer) SetMessageHandler(h MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Send enqueues raw for the write pump. It returns an error immediately if
// the peer has already disconnected rather than blocking forever on a dead
// socket.
func (p *TCPPeer) Send(ctx context.Context, raw []byte) error {
	if !p.IsConnected() {
		return errors.New("transport: send on disconnected peer")
	}
	select {
	case p.sendCh <- raw:
		return nil
	case <-p.quit:
		return errors.New("transport: send on disconnected peer")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *TCPPeer) Disconnect() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = false
	p.mu.Unlock()

	close(p.quit)
	err := p.conn.Close()
	p.wg.Wait()
	return err
}

func (p *TCPPeer) readPump() {
	defer p.wg.Done()
	defer p.Disconnect()

	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(p.conn, lenBuf); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if n > maxFrameSize {
			return
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(p.conn, frame); err != nil {
			return
		}

		p.mu.RLock()
		h := p.handler
		p.mu.RUnlock()
		if h != nil {
			h(frame, p.id)
		}
	}
}

func (p *TCPPeer) writePump() {
	defer p.wg.Done()

	lenBuf := make([]byte, 4)
	for {
		select {
		case raw := <-p.sendCh:
			if len(raw) > maxFrameSize {
				continue
			}
			binary.BigEndian.PutUint32(lenBuf, uint32(len(raw)))
			if _, err := p.conn.Write(lenBuf); err != nil {
				return
			}
			if _, err := p.conn.Write(raw); err != nil {
				return
			}
		case <-p.quit:
			return
		}
	}
}
