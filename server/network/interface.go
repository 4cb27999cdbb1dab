package network

import (
	"context"
	"time"
)

// SourceInterface is a transport that carries raw frames to and from
// endpoints. All methods are called from the tick goroutine.
type SourceInterface interface {
	// Name identifies the interface in logs.
	Name() string
	// Process delivers everything received since the last call to the
	// Handler the interface was built with. It must return once ctx is done.
	Process(ctx context.Context) error
	// Send writes one frame to endpoint.
	Send(endpoint string, data []byte) error
	// Close forgets endpoint, telling the peer why when the transport can.
	Close(endpoint string, reason string)
	// SetName updates the server name advertised to unconnected clients.
	SetName(name string)
	// Shutdown releases the interface.
	Shutdown() error
	// EmergencyShutdown releases the interface after a failure, without
	// waiting for anything.
	EmergencyShutdown()
}

// AdvancedInterface can also send outside of a connection and refuse
// traffic from addresses.
type AdvancedInterface interface {
	SourceInterface
	SendRaw(addr string, port int, data []byte) error
	// BlockAddress drops traffic from addr for d, or forever when d < 0.
	BlockAddress(addr string, d time.Duration)
}

// TrackedInterface can report delivery of a frame through Handler.HandleAck.
type TrackedInterface interface {
	SourceInterface
	SendTracked(endpoint string, data []byte, seq uint32) error
}

// Handler receives what interfaces read. Calls happen inside Process, on
// the tick goroutine.
type Handler interface {
	HandleRaw(iface SourceInterface, endpoint string, data []byte)
	HandleAck(iface SourceInterface, endpoint string, seq uint32)
	HandleClose(iface SourceInterface, endpoint string, reason string)
}
