package session

import (
	"testing"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
	"pgregory.net/rapid"
)

// Feature: player-session, Property 1: A session spawns on exactly the tick
// its sent column count reaches the threshold.
func TestSpawnThreshold_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness()
		h.opts.Player.ViewDistance = 2 // 13 columns
		h.opts.Player.ChunksPerTick = 1
		threshold := rapid.IntRange(1, 13).Draw(t, "threshold")
		h.opts.Player.SpawnThreshold = threshold
		s := h.newSession()
		s.HandlePacket(loginPacket("Steve"))

		for i := 1; i < threshold; i++ {
			s.Tick()
			if s.State() != StateSpawnPending {
				t.Fatalf("spawned after %d of %d columns", s.SentChunks(), threshold)
			}
		}
		s.Tick()
		if s.State() != StateSpawned {
			t.Fatalf("not spawned with %d of %d columns", s.SentChunks(), threshold)
		}
		if h.spawned != 1 {
			t.Fatalf("spawn event fired %d times", h.spawned)
		}
	})
}

// Feature: player-session, Property 2: Sent and queued columns stay disjoint,
// every sent column is in view after a tick, and storage sees one unload
// for every column it handed out.
func TestChunkBookkeeping_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness()
		h.opts.Player.ChunksPerTick = rapid.IntRange(1, 8).Draw(t, "perTick")
		h.opts.Player.SpawnThreshold = 1
		s := h.newSession()
		s.HandlePacket(loginPacket("Steve"))

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				x := rapid.Float32Range(-200, 200).Draw(t, "x")
				z := rapid.Float32Range(-200, 200).Draw(t, "z")
				s.HandlePacket(&protocol.MovePlayerPacket{X: x, Y: 64, Z: z})
			case 1:
				s.SetViewDistance(rapid.IntRange(0, 6).Draw(t, "radius"))
			default:
				s.Tick()
			}
			s.Tick()

			for c := range s.sent {
				if _, ok := s.queued[c]; ok {
					t.Fatalf("column %v both sent and queued", c)
				}
				if _, ok := s.wanted[c]; !ok {
					t.Fatalf("column %v sent but out of view", c)
				}
				if h.chunks.held[c] != 1 {
					t.Fatalf("column %v held %d times", c, h.chunks.held[c])
				}
			}
			if len(s.queue) != len(s.queued) {
				t.Fatalf("queue has %d entries, index %d", len(s.queue), len(s.queued))
			}
			if len(h.chunks.held) != len(s.sent) {
				t.Fatalf("storage holds %d columns, session sent %d", len(h.chunks.held), len(s.sent))
			}
		}

		s.Disconnect(ReasonClientQuit)
		if len(h.chunks.held) != 0 || h.chunks.badUnld != 0 {
			t.Fatalf("after disconnect: %d held, %d bad unloads", len(h.chunks.held), h.chunks.badUnld)
		}
	})
}

// Feature: player-session, Property 3: Open windows never share a handle,
// handles stay in range and every inventory is released exactly once.
func TestWindowHandles_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness()
		s := h.newSession()
		s.HandlePacket(loginPacket("Steve"))

		var all []*fakeInventory
		steps := rapid.IntRange(1, 300).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(s.windows) > 0 && rapid.Bool().Draw(t, "close") {
				ids := make([]byte, 0, len(s.windows))
				for id := range s.windows {
					ids = append(ids, id)
				}
				id := rapid.SampledFrom(ids).Draw(t, "id")
				if !s.CloseWindow(id) {
					t.Fatalf("close of open handle %d failed", id)
				}
				continue
			}

			inv := &fakeInventory{size: 27}
			id, err := s.OpenWindow(inv)
			if len(s.windows) > int(LastWindowID-FirstWindowID)+1 {
				t.Fatalf("%d windows open", len(s.windows))
			}
			if err != nil {
				if len(s.windows) != int(LastWindowID-FirstWindowID)+1 {
					t.Fatalf("open failed with %d windows: %v", len(s.windows), err)
				}
				continue
			}
			all = append(all, inv)
			if id < FirstWindowID || id > LastWindowID {
				t.Fatalf("handle %d out of range", id)
			}
			if got, _ := s.Window(id); got != inv {
				t.Fatalf("handle %d shows another inventory", id)
			}
		}

		s.Disconnect(ReasonClientQuit)
		for i, inv := range all {
			if inv.released != 1 {
				t.Fatalf("inventory %d released %d times", i, inv.released)
			}
		}
	})
}
