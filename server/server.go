package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/protocol"
	"github.com/PocketSoftMine/SoftMine-PE/server/auth"
	"github.com/PocketSoftMine/SoftMine-PE/server/auth/names"
	"github.com/PocketSoftMine/SoftMine-PE/server/network"
	"github.com/PocketSoftMine/SoftMine-PE/server/pool"
	"github.com/PocketSoftMine/SoftMine-PE/server/session"
	"github.com/PocketSoftMine/SoftMine-PE/server/transport"
	"github.com/PocketSoftMine/SoftMine-PE/server/world"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoInterfaces is returned by Run once every interface has failed.
var ErrNoInterfaces = errors.New("no network interface left")

// ReasonServerFull rejects logins above max_players.
const ReasonServerFull = "disconnectionScreen.serverFull"

type inbound struct {
	session *session.Session
	data    []byte
}

// Server runs the tick loop that owns every session.
type Server struct {
	config   *config.Server
	registry *protocol.Registry
	pipeline *protocol.BatchPipeline
	network  *network.Manager
	pool     *pool.SessionPool
	world    session.ChunkSource
	names    *names.NameAuth
	auth     auth.Authenticator
	logger   zerolog.Logger

	// owned by the tick goroutine
	routes  map[uint64]route
	pending []inbound
	spawned map[uint64]struct{}
	ticks   uint64
	lastID  uint64

	online atomic.Int32

	// exit is called when a shutdown outlives ShutdownTimeout
	exit func(code int)
}

type route struct {
	iface    network.SourceInterface
	endpoint string
}

// New creates a server from conf. Interfaces are added by Listen.
func New(conf *config.Server, logger zerolog.Logger) (*Server, error) {
	// Apply defaults to ensure all required fields have values
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger = logger.With().Str("com", "server").Logger()

	flat, err := world.NewFlat(nil, 0, logger)
	if err != nil {
		return nil, fmt.Errorf("create world: %w", err)
	}

	registry := protocol.NewRegistry()
	s := &Server{
		config:   conf,
		registry: registry,
		pipeline: protocol.NewBatchPipeline(registry, conf.Network.BatchConfig(), logger),
		pool:     pool.New(logger),
		world:    flat,
		names:    names.New(conf.Auth),
		logger:   logger,
		routes:   make(map[uint64]route),
		spawned:  make(map[uint64]struct{}),
		exit:     os.Exit,
	}
	s.auth = auth.Chain(s.names, auth.Func(s.checkCapacity))
	s.network = network.NewManager(s, conf.Network.InterfaceBudget, logger)
	s.network.SetName(conf.Name)

	spawn := session.Vec3{X: float32(conf.World.SpawnX), Y: float32(conf.World.SpawnY), Z: float32(conf.World.SpawnZ)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := flat.Prefetch(ctx, world.SpawnArea(spawn, conf.Player.ViewDistance)); err != nil {
		logger.Warn().Err(err).Msg("prefetch spawn area failed")
	}
	return s, nil
}

// Start runs a server for conf until ctx is done.
func Start(ctx context.Context, conf *config.Server) error {
	srv, err := New(conf, log.Logger)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	return srv.Run(ctx)
}

// Listen opens the interfaces enabled in the config.
func (s *Server) Listen() error {
	ifaces := s.config.Interfaces
	if ifaces.UDP.Enabled {
		udp, err := transport.NewUDP(ifaces.UDP, s.network, s.status, s.logger)
		if err != nil {
			return fmt.Errorf("start udp interface: %w", err)
		}
		s.network.RegisterInterface(udp)
	}
	if ifaces.Quic.Enabled {
		if err := ifaces.Quic.LoadCertificate(); err != nil {
			s.network.Shutdown()
			return err
		}
		q, err := transport.NewQuic(ifaces.Quic, s.config.Network.MaxBatchSize, s.network, s.logger)
		if err != nil {
			s.network.Shutdown()
			return fmt.Errorf("start quic interface: %w", err)
		}
		s.network.RegisterInterface(q)
	}
	return nil
}

// Network returns the interface manager.
func (s *Server) Network() *network.Manager { return s.network }

// Sessions returns the session directory.
func (s *Server) Sessions() *pool.SessionPool { return s.pool }

// Names returns the ban and whitelist authenticator.
func (s *Server) Names() *names.NameAuth { return s.names }

// Online returns the number of spawned players.
func (s *Server) Online() int { return int(s.online.Load()) }

func (s *Server) status() (online, max int) {
	return s.Online(), s.config.MaxPlayers
}

func (s *Server) checkCapacity(_ context.Context, info auth.LoginInfo) (bool, string, error) {
	if s.Online() >= s.config.MaxPlayers {
		return false, ReasonServerFull, nil
	}
	return true, "", nil
}

// Run ticks at the configured rate until ctx is done, then disconnects
// every session and shuts the interfaces down.
func (s *Server) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.config.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().
		Str("name", s.config.Name).
		Int("tick_rate", s.config.TickRate).
		Int("interfaces", len(s.network.Interfaces())).
		Msg("server started")

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			start := time.Now()
			if err := s.Tick(ctx); err != nil {
				s.shutdown()
				return err
			}
			if elapsed := time.Since(start); elapsed > interval {
				s.logger.Warn().Dur("elapsed", elapsed).Dur("interval", interval).Msg("tick overran")
			}
		}
	}
}

// Tick runs one scheduler step: read the interfaces, route decoded
// packets, tick and flush every session.
func (s *Server) Tick(ctx context.Context) error {
	s.ticks++
	if err := s.network.ProcessInterfaces(ctx); err != nil {
		s.logger.Error().Err(err).Msg("network interface failed")
	}
	if len(s.network.Interfaces()) == 0 {
		return ErrNoInterfaces
	}

	s.route(ctx)

	for _, sess := range s.pool.List() {
		sess.Tick()
	}
	for _, sess := range s.pool.List() {
		sess.Flush()
	}

	if n := s.config.Network.StatsIntervalTicks; n > 0 && s.ticks%uint64(n) == 0 {
		s.logStatistics()
	}
	return nil
}

// route decodes the frames read this tick off the tick goroutine and
// applies them to their sessions in arrival order.
func (s *Server) route(ctx context.Context) {
	if len(s.pending) == 0 {
		return
	}
	frames := make([][]byte, len(s.pending))
	for i, in := range s.pending {
		frames[i] = in.data
	}
	decoded := s.pipeline.UnpackAll(ctx, frames)
	for i, d := range decoded {
		s.pending[i].session.HandleDecoded(d)
	}
	clear(s.pending)
	s.pending = s.pending[:0]
}

func (s *Server) logStatistics() {
	s.logger.Info().
		Uint64("upload", s.network.Upload()).
		Uint64("download", s.network.Download()).
		Int("sessions", s.pool.Count()).
		Int("online", s.Online()).
		Msg("network statistics")
	s.network.ResetStatistics()
}

func (s *Server) shutdown() {
	done := make(chan struct{})
	defer close(done)
	if d := s.config.ShutdownTimeout; d > 0 {
		go s.watchdog(d, done)
	}

	for _, sess := range s.pool.List() {
		sess.Disconnect("Server closed")
	}
	s.network.Shutdown()
	s.logger.Info().Msg("server stopped")
}

// watchdog kills the process if done is not closed within d.
func (s *Server) watchdog(d time.Duration, done <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Error().Dur("timeout", d).Msg("shutdown took too long, forcing exit")
		s.exit(1)
	}
}
