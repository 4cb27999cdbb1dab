package session

import "github.com/PocketSoftMine/SoftMine-PE/protocol"

// Window handles 0 and 1 belong to the player's own inventory and armour.
const (
	FirstWindowID byte = 2
	LastWindowID  byte = 99
)

// OpenWindow shows inv to the client and returns its window handle. An
// inventory that is already open keeps its handle. Handles are handed out
// round-robin and never collide with one still open.
func (s *Session) OpenWindow(inv Inventory) (byte, error) {
	if s.state == StateDisconnected {
		return 0, ErrDisconnected
	}
	for id, open := range s.windows {
		if open == inv {
			return id, nil
		}
	}

	span := int(LastWindowID-FirstWindowID) + 1
	for i := 0; i < span; i++ {
		id := s.windowCnt
		if s.windowCnt++; s.windowCnt > LastWindowID {
			s.windowCnt = FirstWindowID
		}
		if _, used := s.windows[id]; used {
			continue
		}

		s.windows[id] = inv
		pos := inv.Holder()
		s.Send(&protocol.ContainerOpenPacket{
			WindowID: id,
			Type:     inv.WindowType(),
			Slots:    int16(inv.Size()),
			X:        pos.X,
			Y:        pos.Y,
			Z:        pos.Z,
		})
		return id, nil
	}
	return 0, ErrNoFreeWindow
}

// CloseWindow closes handle id on the client and releases its inventory.
// It reports whether the handle was open.
func (s *Session) CloseWindow(id byte) bool {
	return s.closeWindow(id, true)
}

func (s *Session) closeWindow(id byte, notify bool) bool {
	inv, ok := s.windows[id]
	if !ok {
		return false
	}
	delete(s.windows, id)
	if notify {
		s.Send(&protocol.ContainerClosePacket{WindowID: id})
	}
	inv.Release(s)
	return true
}

// Window returns the inventory shown under handle id.
func (s *Session) Window(id byte) (Inventory, bool) {
	inv, ok := s.windows[id]
	return inv, ok
}

// OpenWindows returns the number of open handles.
func (s *Session) OpenWindows() int {
	return len(s.windows)
}

func (s *Session) releaseWindows() {
	for id := range s.windows {
		s.closeWindow(id, false)
	}
}
