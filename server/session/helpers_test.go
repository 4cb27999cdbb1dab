package session

import (
	"errors"
	"testing"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testPipeline = protocol.NewBatchPipeline(protocol.NewRegistry(), protocol.BatchConfig{}, zerolog.Nop())

type recordSink struct {
	frames [][]byte
	fail   error
}

func (r *recordSink) Send(data []byte) error {
	if r.fail != nil {
		return r.fail
	}
	r.frames = append(r.frames, data)
	return nil
}

// packets decodes everything sent so far and forgets it.
func (r *recordSink) packets(t testing.TB) []protocol.Packet {
	t.Helper()
	var out []protocol.Packet
	for _, f := range r.frames {
		if _, err := testPipeline.Unpack(f, func(pk protocol.Packet) { out = append(out, pk) }); err != nil {
			t.Fatalf("unpack sent frame: %v", err)
		}
	}
	r.frames = nil
	return out
}

type trackedSend struct {
	seq  uint32
	data []byte
}

type trackedSink struct {
	recordSink
	tracked []trackedSend
}

func (r *trackedSink) SendTracked(data []byte, seq uint32) error {
	r.tracked = append(r.tracked, trackedSend{seq: seq, data: data})
	return nil
}

type fakeChunks struct {
	held    map[ChunkPos]int
	fail    map[ChunkPos]bool
	failAll bool
	badUnld int
}

func newFakeChunks() *fakeChunks {
	return &fakeChunks{held: make(map[ChunkPos]int), fail: make(map[ChunkPos]bool)}
}

var errChunkNotReady = errors.New("chunk not generated")

func (c *fakeChunks) ChunkData(x, z int32) ([]byte, error) {
	pos := ChunkPos{X: x, Z: z}
	if c.failAll || c.fail[pos] {
		return nil, errChunkNotReady
	}
	c.held[pos]++
	return []byte{byte(x), byte(z)}, nil
}

func (c *fakeChunks) UnloadChunk(x, z int32) {
	pos := ChunkPos{X: x, Z: z}
	if c.held[pos] == 0 {
		c.badUnld++
		return
	}
	if c.held[pos]--; c.held[pos] == 0 {
		delete(c.held, pos)
	}
}

type fakeDir struct {
	sessions map[uint64]*Session
	removed  map[uint64]int
}

func newFakeDir() *fakeDir {
	return &fakeDir{sessions: make(map[uint64]*Session), removed: make(map[uint64]int)}
}

func (d *fakeDir) Remove(id uint64) {
	d.removed[id]++
	delete(d.sessions, id)
}

func (d *fakeDir) Range(fn func(*Session) bool) {
	snapshot := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		snapshot = append(snapshot, s)
	}
	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

type fakeInventory struct {
	kind     byte
	size     int
	released int
}

func (i *fakeInventory) WindowType() byte          { return i.kind }
func (i *fakeInventory) Size() int                 { return i.size }
func (i *fakeInventory) Holder() protocol.BlockPos { return protocol.BlockPos{X: 1, Y: 2, Z: 3} }
func (i *fakeInventory) Release(*Session)          { i.released++ }

func testPlayerConfig() config.Player {
	return config.Player{
		ViewDistance:       2,
		MinViewDistance:    1,
		MaxViewDistance:    4,
		ChunksPerTick:      4,
		SpawnThreshold:     9,
		AuthTimeoutTicks:   20,
		AckTimeoutTicks:    2,
		MaxAckRetries:      2,
		MaxDecodeErrors:    3,
		ForceMoveTolerance: 0.5,
	}
}

type harness struct {
	sink   *recordSink
	chunks *fakeChunks
	dir    *fakeDir
	opts   Options

	spawned, left, moved int
	reasons              []string
	received             []protocol.Packet
}

var nextTestID uint64

func newHarness() *harness {
	h := &harness{
		sink:   &recordSink{},
		chunks: newFakeChunks(),
		dir:    newFakeDir(),
	}
	h.opts = Options{
		Endpoint: "127.0.0.1:19132",
		Sink:     h.sink,
		Pipeline: testPipeline,
		Chunks:   h.chunks,
		Player:   testPlayerConfig(),
		World:    config.World{GameMode: "survival", Difficulty: 1, SpawnX: 0.5, SpawnY: 64, SpawnZ: 0.5},
		Events: Events{
			OnSpawn:      func(*Session) { h.spawned++ },
			OnLeave:      func(*Session) { h.left++ },
			OnMove:       func(*Session, Vec3, Vec3) { h.moved++ },
			OnDisconnect: func(_ *Session, reason string) { h.reasons = append(h.reasons, reason) },
			OnPacket:     func(_ *Session, pk protocol.Packet) { h.received = append(h.received, pk) },
		},
	}
	h.opts.Directory = h.dir
	return h
}

func (h *harness) newSession() *Session {
	nextTestID++
	opts := h.opts
	opts.ID = nextTestID
	s := New(opts, zerolog.Nop())
	h.dir.sessions[s.ID()] = s
	return s
}

func loginPacket(name string) *protocol.LoginPacket {
	return &protocol.LoginPacket{
		Username:   name,
		Protocol:   protocol.CurrentProtocol,
		ClientID:   42,
		ClientUUID: uuid.New(),
	}
}

// spawn logs s in and ticks until it spawns.
func spawn(t testing.TB, s *Session) {
	t.Helper()
	spawnWith(t, s, loginPacket("Steve"))
}

// spawnWith logs s in with pk and ticks until it spawns.
func spawnWith(t testing.TB, s *Session, pk *protocol.LoginPacket) {
	t.Helper()
	s.HandlePacket(pk)
	for i := 0; i < 100 && s.State() == StateSpawnPending; i++ {
		s.Tick()
	}
	if s.State() != StateSpawned {
		t.Fatalf("session did not spawn, state %s", s.State())
	}
}

func findPackets[T protocol.Packet](pks []protocol.Packet) []T {
	var out []T
	for _, pk := range pks {
		if p, ok := pk.(T); ok {
			out = append(out, p)
		}
	}
	return out
}
