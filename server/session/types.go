package session

import (
	"errors"
	"math"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateAwaitingLogin State = iota
	StateLoggingIn
	StateSpawnPending
	StateSpawned
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateAwaitingLogin:
		return "awaiting_login"
	case StateLoggingIn:
		return "logging_in"
	case StateSpawnPending:
		return "spawn_pending"
	case StateSpawned:
		return "spawned"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Errors
var (
	ErrProtocolVersionMismatch = errors.New("protocol version mismatch")
	ErrAuthenticationTimeout   = errors.New("authentication timeout")
	ErrAcknowledgementTimeout  = errors.New("acknowledgement timeout")
	ErrTooManyMalformed        = errors.New("too many malformed packets")
	ErrNoFreeWindow            = errors.New("no free window handle")
	ErrDisconnected            = errors.New("session disconnected")
)

// Disconnect reasons shown to the client
const (
	ReasonIncompatibleProtocol = "Incompatible protocol"
	ReasonLoginTimeout         = "Login timeout"
	ReasonTimedOut             = "Connection timed out"
	ReasonMalformed            = "Too many malformed packets"
	ReasonAuthFailed           = "Authentication failed"
	ReasonClientQuit           = "client disconnect"
)

// reasonFor maps a lifecycle error to the message shown to the client.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrProtocolVersionMismatch):
		return ReasonIncompatibleProtocol
	case errors.Is(err, ErrAuthenticationTimeout):
		return ReasonLoginTimeout
	case errors.Is(err, ErrAcknowledgementTimeout):
		return ReasonTimedOut
	case errors.Is(err, ErrTooManyMalformed):
		return ReasonMalformed
	default:
		return err.Error()
	}
}

// Vec3 is a position in block units.
type Vec3 struct {
	X, Y, Z float32
}

// DistanceSquared returns the squared euclidean distance to o.
func (v Vec3) DistanceSquared(o Vec3) float32 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

// Chunk returns the column containing v.
func (v Vec3) Chunk() ChunkPos {
	return ChunkPos{
		X: int32(math.Floor(float64(v.X))) >> 4,
		Z: int32(math.Floor(float64(v.Z))) >> 4,
	}
}

// ChunkPos addresses a 16x16 chunk column.
type ChunkPos struct {
	X, Z int32
}

// Sink writes encoded frames to the client's transport endpoint.
type Sink interface {
	Send(data []byte) error
}

// TrackedSink is a Sink that can report delivery of a frame. The transport
// later calls Session.Ack with the same sequence number.
type TrackedSink interface {
	Sink
	SendTracked(data []byte, seq uint32) error
}

// ChunkSource supplies encoded chunk columns from world storage.
type ChunkSource interface {
	ChunkData(x, z int32) ([]byte, error)
	// UnloadChunk tells storage a session no longer needs the column.
	UnloadChunk(x, z int32)
}

// Inventory is anything that can be shown to a client in a window.
type Inventory interface {
	WindowType() byte
	Size() int
	Holder() protocol.BlockPos
	// Release is called exactly once when a window showing the inventory closes.
	Release(s *Session)
}

// Directory is the set of live sessions. Cross-session references go
// through it rather than being held directly.
type Directory interface {
	Remove(id uint64)
	Range(fn func(s *Session) bool)
}

// Events are callbacks into game logic. All of them run on the tick
// goroutine; nil callbacks are skipped.
type Events struct {
	OnSpawn      func(s *Session)
	OnDisconnect func(s *Session, reason string)
	OnPacket     func(s *Session, pk protocol.Packet)
	OnMove       func(s *Session, from, to Vec3)
	// OnLeave fires once for a session that had entered the world.
	OnLeave func(s *Session)
}
