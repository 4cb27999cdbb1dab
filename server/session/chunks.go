package session

import (
	"sort"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
)

// refreshWanted recomputes the chunk columns in view when the session moved
// to another column or its view distance changed. Columns that left the view
// are unloaded or dequeued; new ones are queued nearest first.
func (s *Session) refreshWanted() {
	center := s.position.Chunk()
	r := s.viewDistance
	if s.wanted != nil && center == s.wantedCenter && r == s.wantedRadius {
		return
	}

	wanted := make(map[ChunkPos]struct{}, (2*r+1)*(2*r+1))
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			if dx*dx+dz*dz <= r*r {
				wanted[ChunkPos{X: center.X + int32(dx), Z: center.Z + int32(dz)}] = struct{}{}
			}
		}
	}
	s.wanted, s.wantedCenter, s.wantedRadius = wanted, center, r

	for c := range s.sent {
		if _, ok := wanted[c]; !ok {
			delete(s.sent, c)
			s.chunks.UnloadChunk(c.X, c.Z)
		}
	}

	kept := s.queue[:0]
	for _, c := range s.queue {
		if _, ok := wanted[c]; ok {
			kept = append(kept, c)
		} else {
			delete(s.queued, c)
		}
	}
	s.queue = kept

	for c := range wanted {
		if _, ok := s.sent[c]; ok {
			continue
		}
		if _, ok := s.queued[c]; ok {
			continue
		}
		s.queue = append(s.queue, c)
		s.queued[c] = struct{}{}
	}

	sort.Slice(s.queue, func(i, j int) bool {
		a, b := s.queue[i], s.queue[j]
		da, db := chunkDistance(center, a), chunkDistance(center, b)
		if da != db {
			return da < db
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
}

func chunkDistance(center, c ChunkPos) int64 {
	dx, dz := int64(c.X-center.X), int64(c.Z-center.Z)
	return dx*dx + dz*dz
}

// streamChunks sends up to ChunksPerTick queued columns. A column the world
// cannot produce yet stays at the head of the queue for the next tick.
func (s *Session) streamChunks() {
	s.refreshWanted()

	for budget := s.conf.ChunksPerTick; budget > 0 && len(s.queue) > 0; budget-- {
		c := s.queue[0]
		data, err := s.chunks.ChunkData(c.X, c.Z)
		if err != nil {
			s.logger.Warn().Err(err).Int32("x", c.X).Int32("z", c.Z).Msg("chunk unavailable")
			return
		}
		s.queue = s.queue[1:]
		delete(s.queued, c)
		s.sent[c] = struct{}{}
		s.Send(&protocol.FullChunkDataPacket{
			ChunkX: c.X,
			ChunkZ: c.Z,
			Order:  protocol.ChunkOrderColumns,
			Data:   data,
		})
	}
}

// spawnReady reports whether enough columns around the session have been
// sent. A view smaller than the threshold only needs all of its columns.
func (s *Session) spawnReady() bool {
	need := min(s.conf.SpawnThreshold, len(s.wanted))
	return len(s.sent) >= need
}

func (s *Session) unloadAll() {
	for c := range s.sent {
		s.chunks.UnloadChunk(c.X, c.Z)
	}
	clear(s.sent)
	clear(s.queued)
	s.queue = nil
	s.wanted = nil
	s.wantedRadius = -1
}

// SentChunks returns how many columns the client currently holds.
func (s *Session) SentChunks() int { return len(s.sent) }

// PendingChunks returns how many columns are queued for sending.
func (s *Session) PendingChunks() int { return len(s.queue) }

// HasChunk reports whether column c has been sent.
func (s *Session) HasChunk(c ChunkPos) bool {
	_, ok := s.sent[c]
	return ok
}
