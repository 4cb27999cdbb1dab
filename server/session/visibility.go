package session

// Hidden sets are keyed by the server-assigned session id. The client picks
// its own UUID, so two live sessions may share one.

// Hide stops other from being shown to this session. It does not change
// what other sees. Hiding a session from itself does nothing.
func (s *Session) Hide(other *Session) {
	if s.isSelf(other) || s.state == StateDisconnected {
		return
	}
	if _, ok := s.hidden[other.id]; ok {
		return
	}
	s.hidden[other.id] = struct{}{}
	if s.state == StateSpawned && other.state == StateSpawned {
		s.Send(other.RemovePlayerPacket())
	}
}

// Show reverses Hide.
func (s *Session) Show(other *Session) {
	if s.isSelf(other) || s.state == StateDisconnected {
		return
	}
	if _, ok := s.hidden[other.id]; !ok {
		return
	}
	delete(s.hidden, other.id)
	if s.state == StateSpawned && other.state == StateSpawned {
		s.Send(other.AddPlayerPacket())
	}
}

// CanSee reports whether other is visible to this session.
func (s *Session) CanSee(other *Session) bool {
	if other == nil {
		return false
	}
	if s.isSelf(other) {
		return true
	}
	_, hidden := s.hidden[other.id]
	return !hidden
}

func (s *Session) isSelf(other *Session) bool {
	return other == nil || other == s || other.id == s.id
}

// forget drops a departed session from the hidden set.
func (s *Session) forget(id uint64) {
	delete(s.hidden, id)
}
