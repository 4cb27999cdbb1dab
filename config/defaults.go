package config

import (
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
)

// Server defaults
const (
	// DefaultName is announced to clients when no name is configured
	DefaultName = "SoftMine Server"

	// DefaultTickRate is the number of scheduler ticks per second
	DefaultTickRate = 20

	// DefaultMaxPlayers caps concurrent logins
	DefaultMaxPlayers = 20

	// DefaultShutdownTimeout is how long a graceful stop may take before the
	// process exits anyway
	DefaultShutdownTimeout = 15 * time.Second

	// DefaultUDPPort is the standard game port
	DefaultUDPPort = 19132

	// DefaultQuicPort is used by the QUIC interface when enabled without a port
	DefaultQuicPort = 19133

	// DefaultListenIP binds every interface
	DefaultListenIP = "0.0.0.0"

	// DefaultReadBufferSize is the largest datagram read in one call
	DefaultReadBufferSize = 65535

	// DefaultSocketBuffer is the kernel send/receive buffer requested for UDP sockets
	DefaultSocketBuffer = 4 * 1024 * 1024

	// DefaultUDPIdleTimeout closes silent UDP endpoints
	DefaultUDPIdleTimeout = 30 * time.Second

	// DefaultMaxIdleTimeout is the default QUIC connection idle timeout
	DefaultMaxIdleTimeout = 30 * time.Second
	// DefaultTicketKeyOverlap is the number of session ticket keys kept for decryption
	DefaultTicketKeyOverlap uint8 = 2
)

// Network defaults
const (
	DefaultBatchThreshold   = protocol.DefaultBatchThreshold
	DefaultMaxBatchSize     = protocol.DefaultMaxBatchSize
	DefaultCompressionLevel = protocol.DefaultCompressionLevel

	// DefaultInterfaceBudget is how long one interface may spend in a tick
	DefaultInterfaceBudget = 10 * time.Millisecond

	// DefaultStatsIntervalTicks logs byte counters once a minute at 20 TPS
	DefaultStatsIntervalTicks = 20 * 60
)

// Player defaults
const (
	DefaultViewDistance       = 8
	DefaultMinViewDistance    = 2
	DefaultMaxViewDistance    = 16
	DefaultChunksPerTick      = 4
	DefaultSpawnThreshold     = 56
	DefaultAuthTimeoutTicks   = 20 * 30
	DefaultAckTimeoutTicks    = 40
	DefaultMaxAckRetries      = 3
	DefaultMaxDecodeErrors    = 16
	DefaultForceMoveTolerance = 0.5
)

// World defaults
const (
	DefaultGameMode   = "survival"
	DefaultDifficulty = 1
	DefaultSpawnY     = 64
)
