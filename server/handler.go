package server

import (
	"fmt"
	"strings"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
	"github.com/PocketSoftMine/SoftMine-PE/server/network"
	"github.com/PocketSoftMine/SoftMine-PE/server/session"
)

// ReasonLoggedInElsewhere kicks the older of two sessions with one name.
const ReasonLoggedInElsewhere = "logged in from another location"

func endpointKey(iface network.SourceInterface, endpoint string) string {
	return iface.Name() + "|" + endpoint
}

// HandleRaw queues a frame for its session, creating the session on the
// first frame from an unknown endpoint.
func (s *Server) HandleRaw(iface network.SourceInterface, endpoint string, data []byte) {
	key := endpointKey(iface, endpoint)
	sess, ok := s.pool.ByEndpoint(key)
	if !ok {
		var err error
		if sess, err = s.newSession(iface, endpoint, key); err != nil {
			s.logger.Error().Err(err).Str("endpoint", key).Msg("create session failed")
			return
		}
	}
	s.pending = append(s.pending, inbound{session: sess, data: data})
}

func (s *Server) HandleAck(iface network.SourceInterface, endpoint string, seq uint32) {
	if sess, ok := s.pool.ByEndpoint(endpointKey(iface, endpoint)); ok {
		sess.Ack(seq)
	}
}

func (s *Server) HandleClose(iface network.SourceInterface, endpoint string, reason string) {
	if sess, ok := s.pool.ByEndpoint(endpointKey(iface, endpoint)); ok {
		sess.Disconnect(reason)
	}
}

func (s *Server) newSession(iface network.SourceInterface, endpoint, key string) (*session.Session, error) {
	// session ids double as entity ids, so zero is never issued
	s.lastID++
	sess := session.New(session.Options{
		ID:        s.lastID,
		Endpoint:  endpoint,
		Sink:      s.network.Endpoint(iface, endpoint),
		Pipeline:  s.pipeline,
		Auth:      s.auth,
		Chunks:    s.world,
		Directory: s.pool,
		Events: session.Events{
			OnSpawn:      s.onSpawn,
			OnDisconnect: s.onDisconnect,
			OnPacket:     s.onPacket,
			OnMove:       s.onMove,
			OnLeave:      s.onLeave,
		},
		Player: s.config.Player,
		World:  s.config.World,
	}, s.logger)
	if err := s.pool.Add(key, sess); err != nil {
		return nil, fmt.Errorf("add session: %w", err)
	}
	s.routes[sess.ID()] = route{iface: iface, endpoint: endpoint}
	logger := sess.Logger()
	logger.Debug().Str("interface", iface.Name()).Msg("session created")
	return sess, nil
}

// others calls fn for every spawned session except sess.
func (s *Server) others(sess *session.Session, fn func(other *session.Session)) {
	s.pool.Range(func(other *session.Session) bool {
		if other.ID() != sess.ID() && other.State() == session.StateSpawned {
			fn(other)
		}
		return true
	})
}

// Broadcast sends pk to every spawned session.
func (s *Server) Broadcast(pk protocol.Packet) {
	s.pool.Range(func(other *session.Session) bool {
		if other.State() == session.StateSpawned {
			other.Send(pk)
		}
		return true
	})
}

// BroadcastMessage sends a chat line to every spawned session.
func (s *Server) BroadcastMessage(msg string) {
	s.Broadcast(&protocol.TextPacket{Type: protocol.TextRaw, Message: msg})
}

func (s *Server) onSpawn(sess *session.Session) {
	s.pool.Range(func(other *session.Session) bool {
		if other.ID() != sess.ID() && other.State() != session.StateDisconnected &&
			other.State() != session.StateAwaitingLogin && strings.EqualFold(other.Name(), sess.Name()) {
			other.Disconnect(ReasonLoggedInElsewhere)
		}
		return true
	})

	s.spawned[sess.ID()] = struct{}{}
	s.online.Store(int32(len(s.spawned)))

	s.others(sess, func(other *session.Session) {
		if other.CanSee(sess) {
			other.Send(sess.AddPlayerPacket())
		}
		if sess.CanSee(other) {
			sess.Send(other.AddPlayerPacket())
		}
	})
	s.BroadcastMessage(fmt.Sprintf("%s joined the game", sess.Name()))
}

func (s *Server) onLeave(sess *session.Session) {
	if _, ok := s.spawned[sess.ID()]; !ok {
		return
	}
	delete(s.spawned, sess.ID())
	s.online.Store(int32(len(s.spawned)))

	s.others(sess, func(other *session.Session) {
		other.Send(sess.RemovePlayerPacket())
	})
	s.BroadcastMessage(fmt.Sprintf("%s left the game", sess.Name()))
}

func (s *Server) onDisconnect(sess *session.Session, reason string) {
	r, ok := s.routes[sess.ID()]
	if !ok {
		return
	}
	delete(s.routes, sess.ID())
	r.iface.Close(r.endpoint, reason)
}

func (s *Server) onMove(sess *session.Session, _, _ session.Vec3) {
	pk := sess.MovePacket()
	s.others(sess, func(other *session.Session) {
		if other.CanSee(sess) {
			other.Send(pk)
		}
	})
}

func (s *Server) onPacket(sess *session.Session, pk protocol.Packet) {
	switch p := pk.(type) {
	case *protocol.TextPacket:
		if p.Type != protocol.TextChat || strings.TrimSpace(p.Message) == "" {
			return
		}
		s.logger.Info().Str("player", sess.Name()).Str("message", p.Message).Msg("chat")
		s.Broadcast(&protocol.TextPacket{Type: protocol.TextChat, Source: sess.Name(), Message: p.Message})
	case *protocol.AnimatePacket:
		anim := &protocol.AnimatePacket{Action: p.Action, EntityID: sess.EntityID()}
		s.others(sess, func(other *session.Session) {
			if other.CanSee(sess) {
				other.Send(anim)
			}
		})
	default:
		logger := sess.Logger()
		logger.Trace().Uint8("id", pk.ID()).Msg("unhandled packet")
	}
}
