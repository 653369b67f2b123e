package bridge

import "github.com/relaychat/server/src/types"

// Bridge relays outbound broadcast frames between server instances, one
// relay topic per chat channel plus a shared topic for all-clients frames.
// Only frames cross the bridge; channel and session state stays single-node.
type Bridge interface {
	// Publish sends a frame to all other instances on the relay topic
	// matching its broadcast group.
	Publish(msg types.Message) error

	// Start begins listening for frames from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive frames from the bridge.
type BroadcastTarget interface {
	BroadcastToLocal(msg types.Message)
}
