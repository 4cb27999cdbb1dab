package config

import (
	"compress/zlib"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
)

type Server struct {
	Name       string `yaml:"name" toml:"name"`
	TickRate   int    `yaml:"tick_rate" toml:"tick_rate"`
	MaxPlayers int    `yaml:"max_players" toml:"max_players"`
	// ShutdownTimeout bounds a graceful stop before the process is killed.
	// Negative disables the watchdog.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	Interfaces      Interfaces    `yaml:"interfaces" toml:"interfaces"`
	Network         Network       `yaml:"network" toml:"network"`
	Player          Player        `yaml:"player" toml:"player"`
	World           World         `yaml:"world" toml:"world"`
	Auth            Auth          `yaml:"auth" toml:"auth"`
}

type Interfaces struct {
	UDP  UDPInterface  `yaml:"udp" toml:"udp"`
	Quic QuicInterface `yaml:"quic" toml:"quic"`
}

type UDPInterface struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Listen  `yaml:",inline"`
	// ReadBuffer and WriteBuffer size the kernel socket buffers
	ReadBuffer  int `yaml:"read_buffer" toml:"read_buffer"`
	WriteBuffer int `yaml:"write_buffer" toml:"write_buffer"`
	// IdleTimeout closes endpoints that stop sending
	IdleTimeout time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

type QuicInterface struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Listen   `yaml:",inline"`
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
	Quic     `yaml:",inline"`

	// Session ticket key rotation, disabled when the interval is zero
	TicketKeyRotation time.Duration `yaml:"ticket_key_rotation" toml:"ticket_key_rotation"`
	TicketKeyOverlap  uint8         `yaml:"ticket_key_overlap" toml:"ticket_key_overlap"`

	// Loaded certificate (not from file)
	Certificate tls.Certificate `yaml:"-" toml:"-"`
}

// LoadCertificate loads the TLS key pair from disk.
func (q *QuicInterface) LoadCertificate() error {
	cert, err := tls.LoadX509KeyPair(q.CertFile, q.KeyFile)
	if err != nil {
		return fmt.Errorf("load quic cert/key: %w", err)
	}
	q.Certificate = cert
	return nil
}

type Network struct {
	BatchThreshold     int           `yaml:"batch_threshold" toml:"batch_threshold"`
	MaxBatchSize       int64         `yaml:"max_batch_size" toml:"max_batch_size"`
	CompressionLevel   int           `yaml:"compression_level" toml:"compression_level"`
	InterfaceBudget    time.Duration `yaml:"interface_budget" toml:"interface_budget"`
	StatsIntervalTicks int           `yaml:"stats_interval_ticks" toml:"stats_interval_ticks"`
}

// BatchConfig converts the section into pipeline settings.
func (n Network) BatchConfig() protocol.BatchConfig {
	return protocol.BatchConfig{
		Threshold:        n.BatchThreshold,
		MaxDecompressed:  n.MaxBatchSize,
		CompressionLevel: n.CompressionLevel,
	}
}

type Player struct {
	ViewDistance       int     `yaml:"view_distance" toml:"view_distance"`
	MinViewDistance    int     `yaml:"min_view_distance" toml:"min_view_distance"`
	MaxViewDistance    int     `yaml:"max_view_distance" toml:"max_view_distance"`
	ChunksPerTick      int     `yaml:"chunks_per_tick" toml:"chunks_per_tick"`
	SpawnThreshold     int     `yaml:"spawn_threshold" toml:"spawn_threshold"`
	AuthTimeoutTicks   int     `yaml:"auth_timeout_ticks" toml:"auth_timeout_ticks"`
	AckTimeoutTicks    int     `yaml:"ack_timeout_ticks" toml:"ack_timeout_ticks"`
	MaxAckRetries      int     `yaml:"max_ack_retries" toml:"max_ack_retries"`
	MaxDecodeErrors    int     `yaml:"max_decode_errors" toml:"max_decode_errors"`
	ForceMoveTolerance float64 `yaml:"force_move_tolerance" toml:"force_move_tolerance"`
}

type World struct {
	Seed       int32   `yaml:"seed" toml:"seed"`
	Generator  int32   `yaml:"generator" toml:"generator"`
	GameMode   string  `yaml:"gamemode" toml:"gamemode"`
	Difficulty int32   `yaml:"difficulty" toml:"difficulty"`
	Time       int32   `yaml:"time" toml:"time"`
	SpawnX     float64 `yaml:"spawn_x" toml:"spawn_x"`
	SpawnY     float64 `yaml:"spawn_y" toml:"spawn_y"`
	SpawnZ     float64 `yaml:"spawn_z" toml:"spawn_z"`
}

var gameModes = map[string]int32{
	"survival":  protocol.Survival,
	"creative":  protocol.Creative,
	"adventure": protocol.Adventure,
	"spectator": protocol.Spectator,
}

// GameModeID returns the wire value of the configured game mode.
func (w World) GameModeID() (int32, error) {
	mode, ok := gameModes[strings.ToLower(w.GameMode)]
	if !ok {
		return 0, fmt.Errorf("unknown gamemode %q", w.GameMode)
	}
	return mode, nil
}

type Auth struct {
	// Whitelist restricts logins to the listed names when not empty
	Whitelist []string `yaml:"whitelist" toml:"whitelist"`
	Banned    []string `yaml:"banned" toml:"banned"`
}

// ApplyDefaults fills zero values with the package defaults.
func (s *Server) ApplyDefaults() {
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.TickRate == 0 {
		s.TickRate = DefaultTickRate
	}
	if s.MaxPlayers == 0 {
		s.MaxPlayers = DefaultMaxPlayers
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	udp := &s.Interfaces.UDP
	if udp.IP == "" {
		udp.IP = DefaultListenIP
	}
	if udp.Port == 0 {
		udp.Port = DefaultUDPPort
	}
	if udp.ReadBuffer == 0 {
		udp.ReadBuffer = DefaultSocketBuffer
	}
	if udp.WriteBuffer == 0 {
		udp.WriteBuffer = DefaultSocketBuffer
	}
	if udp.IdleTimeout == 0 {
		udp.IdleTimeout = DefaultUDPIdleTimeout
	}
	q := &s.Interfaces.Quic
	if q.IP == "" {
		q.IP = DefaultListenIP
	}
	if q.Port == 0 {
		q.Port = DefaultQuicPort
	}
	if q.MaxIdleTimeout == 0 {
		q.MaxIdleTimeout = DefaultMaxIdleTimeout
	}
	if q.TicketKeyOverlap == 0 {
		q.TicketKeyOverlap = DefaultTicketKeyOverlap
	}

	n := &s.Network
	if n.BatchThreshold == 0 {
		n.BatchThreshold = DefaultBatchThreshold
	}
	if n.MaxBatchSize == 0 {
		n.MaxBatchSize = DefaultMaxBatchSize
	}
	if n.CompressionLevel == 0 {
		n.CompressionLevel = DefaultCompressionLevel
	}
	if n.InterfaceBudget == 0 {
		n.InterfaceBudget = DefaultInterfaceBudget
	}
	if n.StatsIntervalTicks == 0 {
		n.StatsIntervalTicks = DefaultStatsIntervalTicks
	}

	s.Player.ApplyDefaults()

	if s.World.GameMode == "" {
		s.World.GameMode = DefaultGameMode
	}
	if s.World.Difficulty == 0 {
		s.World.Difficulty = DefaultDifficulty
	}
	if s.World.SpawnY == 0 {
		s.World.SpawnY = DefaultSpawnY
	}
}

// ApplyDefaults fills zero values of the player section.
func (p *Player) ApplyDefaults() {
	if p.ViewDistance == 0 {
		p.ViewDistance = DefaultViewDistance
	}
	if p.MinViewDistance == 0 {
		p.MinViewDistance = DefaultMinViewDistance
	}
	if p.MaxViewDistance == 0 {
		p.MaxViewDistance = DefaultMaxViewDistance
	}
	if p.ChunksPerTick == 0 {
		p.ChunksPerTick = DefaultChunksPerTick
	}
	if p.SpawnThreshold == 0 {
		p.SpawnThreshold = DefaultSpawnThreshold
	}
	if p.AuthTimeoutTicks == 0 {
		p.AuthTimeoutTicks = DefaultAuthTimeoutTicks
	}
	if p.AckTimeoutTicks == 0 {
		p.AckTimeoutTicks = DefaultAckTimeoutTicks
	}
	if p.MaxAckRetries == 0 {
		p.MaxAckRetries = DefaultMaxAckRetries
	}
	if p.MaxDecodeErrors == 0 {
		p.MaxDecodeErrors = DefaultMaxDecodeErrors
	}
	if p.ForceMoveTolerance == 0 {
		p.ForceMoveTolerance = DefaultForceMoveTolerance
	}
}

// Validate checks the configuration after defaults have been applied.
func (s *Server) Validate() error {
	if s.TickRate < 1 || s.TickRate > 100 {
		return fmt.Errorf("tick_rate must be between 1 and 100, got %d", s.TickRate)
	}
	if s.MaxPlayers < 1 {
		return fmt.Errorf("max_players must be positive, got %d", s.MaxPlayers)
	}

	if !s.Interfaces.UDP.Enabled && !s.Interfaces.Quic.Enabled {
		return errors.New("at least one interface must be enabled")
	}
	if s.Interfaces.UDP.Enabled {
		if err := s.Interfaces.UDP.validate(); err != nil {
			return fmt.Errorf("interfaces.udp: %w", err)
		}
	}
	if q := s.Interfaces.Quic; q.Enabled {
		if err := q.validate(); err != nil {
			return fmt.Errorf("interfaces.quic: %w", err)
		}
		if q.CertFile == "" || q.KeyFile == "" {
			return errors.New("interfaces.quic: cert_file and key_file are required")
		}
	}

	if err := s.Network.Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := s.Player.Validate(); err != nil {
		return fmt.Errorf("player: %w", err)
	}
	if _, err := s.World.GameModeID(); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	if s.World.Difficulty < 0 || s.World.Difficulty > 3 {
		return fmt.Errorf("world: difficulty must be between 0 and 3, got %d", s.World.Difficulty)
	}
	return nil
}

func (n Network) Validate() error {
	if n.BatchThreshold < 0 {
		return fmt.Errorf("batch_threshold must not be negative, got %d", n.BatchThreshold)
	}
	if n.MaxBatchSize < 1024 {
		return fmt.Errorf("max_batch_size must be at least 1024, got %d", n.MaxBatchSize)
	}
	if n.CompressionLevel < zlib.HuffmanOnly || n.CompressionLevel > zlib.BestCompression {
		return fmt.Errorf("compression_level must be between %d and %d, got %d",
			zlib.HuffmanOnly, zlib.BestCompression, n.CompressionLevel)
	}
	if n.InterfaceBudget <= 0 {
		return fmt.Errorf("interface_budget must be positive, got %v", n.InterfaceBudget)
	}
	return nil
}

func (p Player) Validate() error {
	if p.MinViewDistance < 1 {
		return fmt.Errorf("min_view_distance must be at least 1, got %d", p.MinViewDistance)
	}
	if p.MaxViewDistance < p.MinViewDistance {
		return fmt.Errorf("max_view_distance %d is below min_view_distance %d", p.MaxViewDistance, p.MinViewDistance)
	}
	if p.ViewDistance < p.MinViewDistance || p.ViewDistance > p.MaxViewDistance {
		return fmt.Errorf("view_distance must be between %d and %d, got %d",
			p.MinViewDistance, p.MaxViewDistance, p.ViewDistance)
	}
	if p.ChunksPerTick < 1 {
		return fmt.Errorf("chunks_per_tick must be at least 1, got %d", p.ChunksPerTick)
	}
	if p.SpawnThreshold < 1 {
		return fmt.Errorf("spawn_threshold must be at least 1, got %d", p.SpawnThreshold)
	}
	if p.AuthTimeoutTicks < 1 || p.AckTimeoutTicks < 1 {
		return errors.New("auth_timeout_ticks and ack_timeout_ticks must be positive")
	}
	if p.MaxAckRetries < 0 {
		return fmt.Errorf("max_ack_retries must not be negative, got %d", p.MaxAckRetries)
	}
	if p.MaxDecodeErrors < 1 {
		return fmt.Errorf("max_decode_errors must be at least 1, got %d", p.MaxDecodeErrors)
	}
	if p.ForceMoveTolerance < 0 {
		return fmt.Errorf("force_move_tolerance must not be negative, got %v", p.ForceMoveTolerance)
	}
	return nil
}
