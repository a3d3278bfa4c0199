// Package transport defines the Peer contract the gossip engine broadcasts
// and receives framed messages through. A WebSocket/WebRTC hybrid
// transport, signaling, state-sync, and Kademlia/supernode routing are
// all reasonable Peer implementations this package deliberately doesn't
// provide; it carries only the narrow "send/receive framed bytes to peer
// X" interface the engine needs, mirroring the outgoing-queue/
// message-handler split a long-lived wire connection typically uses.
package transport

import "context"

// MessageHandler receives raw framed gossip messages off a peer's wire.
type MessageHandler func(raw []byte, peerID string)

// Peer is a single connected mesh peer as seen by the gossip engine.
type Peer interface {
	// ID uniquely identifies this peer within the local node.
	ID() string

	// RemoteAddress returns the peer's network address, used for
	// subnet-diversity tracking. Empty if unknown.
	RemoteAddress() string

	// IsConnected reports whether the peer's link is currently live.
	IsConnected() bool

	// Send queues a framed message for delivery to this peer. It may
	// return before the write completes; failures are reported through
	// the returned error or, for asynchronous transports, surfaced on
	// the next Send/SetMessageHandler call.
	Send(ctx context.Context, raw []byte) error

	// SetMessageHandler installs the callback invoked for every inbound
	// gossip message this peer delivers.
	SetMessageHandler(handler MessageHandler)

	// Disconnect tears down the underlying link, if the transport
	// supports it. Optional: a transport that cannot disconnect
	// unilaterally may no-op.
	Disconnect() error
}
