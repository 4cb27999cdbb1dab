package pool

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
	"github.com/PocketSoftMine/SoftMine-PE/server/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"pgregory.net/rapid"
)

type discardSink struct{}

func (discardSink) Send([]byte) error { return nil }

type noChunks struct{}

func (noChunks) ChunkData(x, z int32) ([]byte, error) { return nil, nil }
func (noChunks) UnloadChunk(x, z int32)               {}

var pipeline = protocol.NewBatchPipeline(protocol.NewRegistry(), protocol.BatchConfig{}, zerolog.Nop())

func newTestSession(id uint64, dir session.Directory) *session.Session {
	return session.New(session.Options{
		ID:        id,
		Endpoint:  fmt.Sprintf("10.0.0.%d:19132", id),
		Sink:      discardSink{},
		Pipeline:  pipeline,
		Chunks:    noChunks{},
		Directory: dir,
	}, zerolog.Nop())
}

func login(s *session.Session, name string) uuid.UUID {
	id := uuid.New()
	s.HandlePacket(&protocol.LoginPacket{
		Username:   name,
		Protocol:   protocol.CurrentProtocol,
		ClientUUID: id,
	})
	return id
}

// TestSessionPool_AddRemove tests adding and removing sessions
func TestSessionPool_AddRemove(t *testing.T) {
	pool := New(zerolog.Nop())
	s := newTestSession(1, pool)

	if err := pool.Add("udp|"+s.Endpoint(), s); err != nil {
		t.Fatalf("failed to add session: %v", err)
	}
	if pool.Count() != 1 {
		t.Errorf("expected 1 session, got %d", pool.Count())
	}

	// Same id again
	if err := pool.Add("udp|other", s); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}
	// Same endpoint, new session
	if err := pool.Add("udp|"+s.Endpoint(), newTestSession(2, pool)); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession for endpoint, got %v", err)
	}

	got, ok := pool.ByEndpoint("udp|" + s.Endpoint())
	if !ok || got != s {
		t.Errorf("lookup by endpoint failed")
	}

	pool.Remove(1)
	pool.Remove(1)
	if pool.Count() != 0 {
		t.Errorf("expected 0 sessions after removal, got %d", pool.Count())
	}
	if _, ok := pool.ByEndpoint("udp|" + s.Endpoint()); ok {
		t.Error("endpoint still bound after removal")
	}
}

func TestSessionPool_RangeAllowsRemoval(t *testing.T) {
	pool := New(zerolog.Nop())
	for i := uint64(1); i <= 5; i++ {
		s := newTestSession(i, pool)
		if err := pool.Add(s.Endpoint(), s); err != nil {
			t.Fatal(err)
		}
	}

	seen := 0
	pool.Range(func(s *session.Session) bool {
		seen++
		pool.Remove(s.ID())
		return true
	})
	if seen != 5 {
		t.Errorf("expected to visit 5 sessions, visited %d", seen)
	}
	if pool.Count() != 0 {
		t.Errorf("expected empty pool, got %d", pool.Count())
	}
}

func TestSessionPool_RangeStops(t *testing.T) {
	pool := New(zerolog.Nop())
	for i := uint64(1); i <= 5; i++ {
		s := newTestSession(i, pool)
		_ = pool.Add(s.Endpoint(), s)
	}

	seen := 0
	pool.Range(func(*session.Session) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Errorf("expected Range to stop after 2, visited %d", seen)
	}
}

func TestSessionPool_DisconnectRemovesItself(t *testing.T) {
	pool := New(zerolog.Nop())
	a, b := newTestSession(1, pool), newTestSession(2, pool)
	_ = pool.Add(a.Endpoint(), a)
	_ = pool.Add(b.Endpoint(), b)

	a.Disconnect(session.ReasonClientQuit)

	if _, ok := pool.Get(1); ok {
		t.Error("disconnected session still in pool")
	}
	if _, ok := pool.Get(2); !ok {
		t.Error("other session was removed")
	}
}

func TestSessionPool_LookupByNameAndUUID(t *testing.T) {
	pool := New(zerolog.Nop())
	a, b := newTestSession(1, pool), newTestSession(2, pool)
	_ = pool.Add(a.Endpoint(), a)
	_ = pool.Add(b.Endpoint(), b)

	id := login(a, "Steve")

	if s, ok := pool.ByName("steve"); !ok || s != a {
		t.Error("case-insensitive name lookup failed")
	}
	if _, ok := pool.ByName(""); ok {
		t.Error("a session that has not logged in matched the empty name")
	}
	if s, ok := pool.ByUUID(id); !ok || s != a {
		t.Error("uuid lookup failed")
	}
	if _, ok := pool.ByUUID(uuid.New()); ok {
		t.Error("unknown uuid matched")
	}
}

// Feature: session-pool, Property 1: Count, List and endpoint bindings agree
// after any sequence of adds and removes.
func TestSessionPool_Consistency_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pool := New(zerolog.Nop())
		live := map[uint64]bool{}

		ops := rapid.IntRange(1, 100).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			id := rapid.Uint64Range(1, 20).Draw(t, "id")
			if rapid.Bool().Draw(t, "add") {
				err := pool.Add(fmt.Sprintf("ep-%d", id), newTestSession(id, pool))
				if live[id] != (err != nil) {
					t.Fatalf("add %d: live=%v err=%v", id, live[id], err)
				}
				live[id] = true
			} else {
				pool.Remove(id)
				delete(live, id)
			}

			if pool.Count() != len(live) || len(pool.List()) != len(live) {
				t.Fatalf("count %d list %d want %d", pool.Count(), len(pool.List()), len(live))
			}
			for lid := range live {
				s, ok := pool.ByEndpoint(fmt.Sprintf("ep-%d", lid))
				if !ok || s.ID() != lid {
					t.Fatalf("endpoint of %d not bound", lid)
				}
			}
		}
	})
}

func TestSessionPool_ConcurrentReads(t *testing.T) {
	pool := New(zerolog.Nop())
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = pool.Add(fmt.Sprintf("ep-%d", id), newTestSession(id, nil))
				pool.Count()
				pool.List()
				pool.Get(id)
				pool.Remove(id)
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	if pool.Count() != 0 {
		t.Errorf("expected empty pool, got %d", pool.Count())
	}
}
