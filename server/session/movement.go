package session

import (
	"github.com/PocketSoftMine/SoftMine-PE/protocol"
)

func (s *Session) handleMove(pk *protocol.MovePlayerPacket) {
	to := Vec3{X: pk.X, Y: pk.Y, Z: pk.Z}
	if s.forced != nil {
		tol := float32(s.conf.ForceMoveTolerance)
		if to.DistanceSquared(*s.forced) > tol*tol {
			s.logger.Trace().
				Float32("x", pk.X).Float32("y", pk.Y).Float32("z", pk.Z).
				Msg("ignoring movement while a teleport is pending")
			return
		}
		s.forced = nil
	}
	s.moveTo(to, pk.Yaw, pk.Pitch)
}

// ForceMove teleports the session. Client movement is ignored until the
// client reports a position within the configured tolerance of to.
func (s *Session) ForceMove(to Vec3) {
	if s.state != StateSpawnPending && s.state != StateSpawned {
		return
	}
	target := to
	s.forced = &target
	s.Send(&protocol.MovePlayerPacket{
		EntityID: s.EntityID(),
		X:        to.X,
		Y:        to.Y,
		Z:        to.Z,
		Yaw:      s.yaw,
		BodyYaw:  s.yaw,
		Pitch:    s.pitch,
		Mode:     protocol.MoveModeReset,
	})
	s.moveTo(to, s.yaw, s.pitch)
}

// HasPendingTeleport reports whether a forced move awaits acknowledgement.
func (s *Session) HasPendingTeleport() bool {
	return s.forced != nil
}

func (s *Session) moveTo(to Vec3, yaw, pitch float32) {
	from := s.position
	s.position = to
	s.yaw, s.pitch = yaw, pitch
	if s.state == StateSpawned && s.events.OnMove != nil {
		s.events.OnMove(s, from, to)
	}
}

// MovePacket describes the current position to other clients.
func (s *Session) MovePacket() *protocol.MovePlayerPacket {
	return &protocol.MovePlayerPacket{
		EntityID: s.EntityID(),
		X:        s.position.X,
		Y:        s.position.Y,
		Z:        s.position.Z,
		Yaw:      s.yaw,
		BodyYaw:  s.yaw,
		Pitch:    s.pitch,
		Mode:     protocol.MoveModeNormal,
	}
}
