package session

import (
	"context"
	"fmt"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/protocol"
	"github.com/PocketSoftMine/SoftMine-PE/server/auth"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options holds the collaborators of a session.
type Options struct {
	ID        uint64
	Endpoint  string
	Sink      Sink
	Pipeline  *protocol.BatchPipeline
	Auth      auth.Authenticator
	Chunks    ChunkSource
	Directory Directory
	Events    Events
	Player    config.Player
	World     config.World
}

type authResult struct {
	accepted bool
	reason   string
	err      error
}

// Session is the server side of one client connection.
//
// A session is owned by the tick goroutine and every method must be called
// from it. Nothing here takes a lock.
type Session struct {
	id       uint64
	endpoint string
	sink     Sink
	pipeline *protocol.BatchPipeline
	auth     auth.Authenticator
	chunks   ChunkSource
	dir      Directory
	events   Events
	conf     config.Player
	world    config.World
	logger   zerolog.Logger

	state     State
	loginSeen bool
	entered   bool
	err       error
	reason    string

	name       string
	uuid       uuid.UUID
	clientID   int64
	clientData protocol.ClientData
	gameMode   int32

	position     Vec3
	yaw, pitch   float32
	forced       *Vec3
	viewDistance int

	sent         map[ChunkPos]struct{}
	queue        []ChunkPos
	queued       map[ChunkPos]struct{}
	wanted       map[ChunkPos]struct{}
	wantedCenter ChunkPos
	wantedRadius int

	hidden map[uint64]struct{}

	windows   map[byte]Inventory
	windowCnt byte

	outbound     []protocol.Packet
	seq          uint32
	outbox       *outbox
	tick         uint64
	decodeErrors int

	authCancel context.CancelFunc
	authDone   chan authResult
}

// New creates a session in StateAwaitingLogin.
func New(opts Options, logger zerolog.Logger) *Session {
	gameMode, err := opts.World.GameModeID()
	if err != nil {
		gameMode = protocol.Survival
	}
	return &Session{
		id:       opts.ID,
		endpoint: opts.Endpoint,
		sink:     opts.Sink,
		pipeline: opts.Pipeline,
		auth:     opts.Auth,
		chunks:   opts.Chunks,
		dir:      opts.Directory,
		events:   opts.Events,
		conf:     opts.Player,
		world:    opts.World,
		logger: logger.With().
			Uint64("session_id", opts.ID).
			Str("endpoint", opts.Endpoint).
			Logger(),

		state:        StateAwaitingLogin,
		uuid:         uuid.New(),
		gameMode:     gameMode,
		position:     Vec3{X: float32(opts.World.SpawnX), Y: float32(opts.World.SpawnY), Z: float32(opts.World.SpawnZ)},
		viewDistance: opts.Player.ViewDistance,
		sent:         make(map[ChunkPos]struct{}),
		queued:       make(map[ChunkPos]struct{}),
		wantedRadius: -1,
		hidden:       make(map[uint64]struct{}),
		windows:      make(map[byte]Inventory),
		windowCnt:    FirstWindowID,
		outbox:       newOutbox(),
	}
}

func (s *Session) ID() uint64 { return s.id }
func (s *Session) EntityID() int64 { return int64(s.id) }
func (s *Session) Endpoint() string { return s.endpoint }
func (s *Session) State() State { return s.state }
func (s *Session) Name() string { return s.name }
func (s *Session) UUID() uuid.UUID { return s.uuid }
func (s *Session) GameMode() int32 { return s.gameMode }
func (s *Session) Position() Vec3 { return s.position }
func (s *Session) ViewDistance() int { return s.viewDistance }
func (s *Session) Logger() zerolog.Logger { return s.logger }

// ClientData returns what the client reported about its device at login.
func (s *Session) ClientData() protocol.ClientData { return s.clientData }

// Err returns the error that ended the session, if any.
func (s *Session) Err() error { return s.err }

// Reason returns the disconnect reason once the session has ended.
func (s *Session) Reason() string { return s.reason }

// HandleRaw decodes one transport payload and dispatches its packets.
func (s *Session) HandleRaw(data []byte) {
	var d protocol.Decoded
	d.Stats, d.Err = s.pipeline.Unpack(data, func(pk protocol.Packet) {
		d.Packets = append(d.Packets, pk)
	})
	s.HandleDecoded(d)
}

// HandleDecoded dispatches packets that were decoded off the tick goroutine
// and accounts for decode failures.
func (s *Session) HandleDecoded(d protocol.Decoded) {
	for _, pk := range d.Packets {
		if s.state == StateDisconnected {
			return
		}
		s.HandlePacket(pk)
	}

	failures := d.Stats.Malformed
	if d.Err != nil {
		s.logger.Debug().Err(d.Err).Bool("rejected", protocol.IsRejected(d.Err)).Msg("dropped undecodable payload")
		if failures == 0 {
			failures = 1
		}
	}
	if failures == 0 || s.state == StateDisconnected {
		return
	}
	s.decodeErrors += failures
	if s.decodeErrors >= s.conf.MaxDecodeErrors {
		s.Close(fmt.Errorf("%w: %d", ErrTooManyMalformed, s.decodeErrors))
	}
}

// HandlePacket applies one decoded packet according to the current state.
func (s *Session) HandlePacket(pk protocol.Packet) {
	switch s.state {
	case StateDisconnected:
		return
	case StateAwaitingLogin:
		if login, ok := pk.(*protocol.LoginPacket); ok {
			s.handleLogin(login)
			return
		}
		s.logger.Trace().Uint8("id", pk.ID()).Msg("dropping packet before login")
		return
	case StateLoggingIn:
		s.logger.Trace().Uint8("id", pk.ID()).Msg("dropping packet during authentication")
		return
	}

	switch p := pk.(type) {
	case *protocol.LoginPacket:
		s.logger.Debug().Msg("ignoring repeated login")
	case *protocol.MovePlayerPacket:
		s.handleMove(p)
	case *protocol.RequestChunkRadiusPacket:
		s.SetViewDistance(int(p.Radius))
	case *protocol.ContainerClosePacket:
		s.closeWindow(p.WindowID, false)
	default:
		if s.state == StateSpawned && s.events.OnPacket != nil {
			s.events.OnPacket(s, pk)
		}
	}
}

func (s *Session) handleLogin(pk *protocol.LoginPacket) {
	s.loginSeen = true
	s.name = pk.Username
	s.clientID = pk.ClientID
	if pk.ClientUUID != uuid.Nil {
		s.uuid = pk.ClientUUID
	}
	s.logger = s.logger.With().Str("player", s.name).Logger()

	if pk.Protocol != protocol.CurrentProtocol {
		status := protocol.StatusLoginFailedClient
		if pk.Protocol > protocol.CurrentProtocol {
			status = protocol.StatusLoginFailedServer
		}
		s.Send(&protocol.PlayStatusPacket{Status: status})
		s.Close(fmt.Errorf("%w: client %d, server %d", ErrProtocolVersionMismatch, pk.Protocol, protocol.CurrentProtocol))
		return
	}

	if cd, err := pk.ParseClientData(); err != nil {
		s.logger.Debug().Err(err).Msg("unreadable client data")
	} else {
		s.clientData = cd
	}

	s.state = StateLoggingIn
	info := auth.LoginInfo{
		Username: s.name,
		UUID:     s.uuid,
		ClientID: s.clientID,
		Address:  s.endpoint,
		Protocol: pk.Protocol,
	}
	if s.auth == nil {
		s.enterWorld()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan authResult, 1)
	s.authCancel, s.authDone = cancel, done
	authenticator := s.auth
	go func() {
		ok, reason, err := authenticator.VerifyLogin(ctx, info)
		done <- authResult{accepted: ok, reason: reason, err: err}
	}()
}

// pollAuth applies a finished authentication without blocking.
func (s *Session) pollAuth() {
	if s.state != StateLoggingIn || s.authDone == nil {
		return
	}
	var r authResult
	select {
	case r = <-s.authDone:
	default:
		return
	}
	s.authDone = nil
	s.authCancel()
	s.authCancel = nil

	switch {
	case r.err != nil:
		s.logger.Warn().Err(r.err).Msg("authenticator failed")
		s.Disconnect(ReasonAuthFailed)
	case !r.accepted:
		reason := r.reason
		if reason == "" {
			reason = ReasonAuthFailed
		}
		s.logger.Info().Str("reason", reason).Msg("login rejected")
		s.Disconnect(reason)
	default:
		s.enterWorld()
	}
}

func (s *Session) enterWorld() {
	s.state = StateSpawnPending
	s.entered = true

	spawn := s.position
	s.SendReliable(&protocol.PlayStatusPacket{Status: protocol.StatusLoginSuccess})
	s.Send(&protocol.StartGamePacket{
		Seed:      s.world.Seed,
		Generator: s.world.Generator,
		GameMode:  s.gameMode,
		EntityID:  s.EntityID(),
		SpawnX:    int32(spawn.X),
		SpawnY:    int32(spawn.Y),
		SpawnZ:    int32(spawn.Z),
		X:         spawn.X,
		Y:         spawn.Y,
		Z:         spawn.Z,
	})
	s.Send(&protocol.SetTimePacket{Time: s.world.Time, Started: true})
	s.Send(&protocol.SetSpawnPositionPacket{X: int32(spawn.X), Y: int32(spawn.Y), Z: int32(spawn.Z)})
	s.Send(&protocol.SetDifficultyPacket{Difficulty: s.world.Difficulty})
	s.Send(&protocol.AdventureSettingsPacket{Flags: adventureFlags(s.gameMode)})
	s.Send(&protocol.SetHealthPacket{Health: 20})
	s.Send(&protocol.ChunkRadiusUpdatedPacket{Radius: int32(s.viewDistance)})

	s.logger.Info().
		Str("uuid", s.uuid.String()).
		Str("device", s.clientData.DeviceModel).
		Msg("player logged in")
}

// Tick runs one scheduler step: authentication and acknowledgement
// deadlines, chunk streaming and spawn gating.
func (s *Session) Tick() {
	if s.state == StateDisconnected {
		return
	}
	s.tick++
	s.pollAuth()

	switch s.state {
	case StateAwaitingLogin, StateLoggingIn:
		if s.tick >= uint64(s.conf.AuthTimeoutTicks) {
			s.Close(ErrAuthenticationTimeout)
			return
		}
	case StateSpawnPending, StateSpawned:
		s.streamChunks()
		if s.state == StateSpawnPending && s.spawnReady() {
			s.spawn()
		}
	}

	s.processAcks()
}

func (s *Session) spawn() {
	s.state = StateSpawned
	s.SendReliable(&protocol.PlayStatusPacket{Status: protocol.StatusPlayerSpawn})
	if s.state == StateDisconnected {
		return
	}
	s.logger.Info().
		Int("chunks", len(s.sent)).
		Uint64("ticks", s.tick).
		Msg("player spawned")
	if s.events.OnSpawn != nil {
		s.events.OnSpawn(s)
	}
}

// Send queues pk for the next Flush.
func (s *Session) Send(pk protocol.Packet) {
	if s.state == StateDisconnected {
		return
	}
	s.outbound = append(s.outbound, pk)
}

// SendMessage sends a raw chat line.
func (s *Session) SendMessage(msg string) {
	s.Send(&protocol.TextPacket{Type: protocol.TextRaw, Message: msg})
}

// Flush encodes queued packets and writes them to the transport. A write
// failure ends the session.
func (s *Session) Flush() {
	if s.state == StateDisconnected {
		return
	}
	if err := s.flush(); err != nil {
		s.Close(err)
	}
}

func (s *Session) flush() error {
	if len(s.outbound) == 0 {
		return nil
	}
	frames, err := s.pipeline.Pack(s.outbound)
	clear(s.outbound)
	s.outbound = s.outbound[:0]
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	for _, f := range frames {
		s.seq++
		if err := s.sink.Send(f); err != nil {
			return fmt.Errorf("send frame %d: %w", s.seq, err)
		}
	}
	return nil
}

// Close ends the session because of err.
func (s *Session) Close(err error) {
	if s.state == StateDisconnected {
		return
	}
	s.err = err
	s.logger.Debug().Err(err).Msg("closing session")
	s.Disconnect(reasonFor(err))
}

// Disconnect ends the session. The client receives reason if it got as far
// as logging in. Calling Disconnect again has no effect.
func (s *Session) Disconnect(reason string) {
	if s.state == StateDisconnected {
		return
	}
	prev := s.state
	s.state = StateDisconnected
	s.reason = reason

	if s.authCancel != nil {
		s.authCancel()
		s.authCancel = nil
		s.authDone = nil
	}

	if s.loginSeen {
		s.outbound = append(s.outbound, &protocol.DisconnectPacket{Message: reason})
	}
	if err := s.flush(); err != nil {
		s.logger.Debug().Err(err).Msg("final flush failed")
	}
	s.outbound = nil

	s.releaseWindows()
	s.outbox.clear()
	s.unloadAll()
	s.forced = nil

	if s.dir != nil {
		s.dir.Remove(s.id)
		s.dir.Range(func(other *Session) bool {
			other.forget(s.id)
			return true
		})
	}
	s.hidden = make(map[uint64]struct{})

	s.logger.Info().
		Str("reason", reason).
		Str("from", prev.String()).
		Msg("session disconnected")

	if s.events.OnDisconnect != nil {
		s.events.OnDisconnect(s, reason)
	}
	if s.entered && s.events.OnLeave != nil {
		s.events.OnLeave(s)
	}
}

// SetGameMode changes the game mode and tells the client.
func (s *Session) SetGameMode(mode int32) {
	s.gameMode = mode
	s.Send(&protocol.SetPlayerGameTypePacket{GameMode: mode})
	s.Send(&protocol.AdventureSettingsPacket{Flags: adventureFlags(mode)})
}

func adventureFlags(mode int32) int32 {
	flags := protocol.AdventureAutoJump
	switch mode {
	case protocol.Creative:
		flags |= protocol.AdventureAllowFlight
	case protocol.Adventure:
		flags |= protocol.AdventureWorldImmutable
	case protocol.Spectator:
		flags |= protocol.AdventureWorldImmutable | protocol.AdventureAllowFlight | protocol.AdventureNoClip
	}
	return flags
}

// SetViewDistance clamps n to the configured range, applies it and
// confirms the radius to the client.
func (s *Session) SetViewDistance(n int) {
	n = max(s.conf.MinViewDistance, min(n, s.conf.MaxViewDistance))
	s.viewDistance = n
	s.Send(&protocol.ChunkRadiusUpdatedPacket{Radius: int32(n)})
}

// AddPlayerPacket describes this session to other clients.
func (s *Session) AddPlayerPacket() *protocol.AddPlayerPacket {
	return &protocol.AddPlayerPacket{
		UUID:     s.uuid,
		Username: s.name,
		EntityID: s.EntityID(),
		X:        s.position.X,
		Y:        s.position.Y,
		Z:        s.position.Z,
		Yaw:      s.yaw,
		HeadYaw:  s.yaw,
		Pitch:    s.pitch,
		Metadata: protocol.Metadata{
			protocol.DataFlags:       {Type: protocol.MetaByte, Value: byte(0)},
			protocol.DataAir:         {Type: protocol.MetaShort, Value: int16(300)},
			protocol.DataNameTag:     {Type: protocol.MetaString, Value: s.name},
			protocol.DataShowNameTag: {Type: protocol.MetaByte, Value: byte(1)},
			protocol.DataSilent:      {Type: protocol.MetaByte, Value: byte(0)},
			protocol.DataNoAI:        {Type: protocol.MetaByte, Value: byte(0)},
		},
	}
}

// RemovePlayerPacket removes this session from other clients.
func (s *Session) RemovePlayerPacket() *protocol.RemovePlayerPacket {
	return &protocol.RemovePlayerPacket{EntityID: s.EntityID(), UUID: s.uuid}
}
