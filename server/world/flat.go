// Package world provides the chunk source used when no world storage is
// attached to the server.
package world

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/server/session"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Column dimensions
const (
	ColumnHeight = 128
	blockCount   = 16 * 16 * ColumnHeight
	nibbleCount  = blockCount / 2
)

// Block ids used by the default layers
const (
	BlockBedrock byte = 7
	BlockDirt    byte = 3
	BlockGrass   byte = 2
)

// DefaultLayers is bedrock, two dirt and a grass layer from y=0 upwards.
var DefaultLayers = []byte{BlockBedrock, BlockDirt, BlockDirt, BlockGrass}

const (
	plainsBiome = 1
	grassColor  = 0x7abd6b
)

// DefaultCacheTTL keeps encoded columns after the last player unloads them.
const DefaultCacheTTL = 5 * time.Minute

// FlatWorld generates identical layered columns and caches their encoding.
// It is safe for concurrent use.
type FlatWorld struct {
	layers []byte
	ttl    time.Duration
	cache  *cache.Cache
	group  singleflight.Group
	logger zerolog.Logger

	mu   sync.Mutex
	refs map[session.ChunkPos]int
}

// NewFlat creates a world made of layers, bottom first. Empty layers use
// DefaultLayers.
func NewFlat(layers []byte, ttl time.Duration, logger zerolog.Logger) (*FlatWorld, error) {
	if len(layers) == 0 {
		layers = DefaultLayers
	}
	if len(layers) > ColumnHeight {
		return nil, fmt.Errorf("%d layers do not fit in a %d block column", len(layers), ColumnHeight)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &FlatWorld{
		layers: layers,
		ttl:    ttl,
		cache:  cache.New(ttl, 0),
		logger: logger.With().Str("com", "world").Logger(),
		refs:   make(map[session.ChunkPos]int),
	}, nil
}

func chunkKey(x, z int32) string {
	return fmt.Sprintf("%d:%d", x, z)
}

// ChunkData returns the encoded column at x, z and marks it held.
func (w *FlatWorld) ChunkData(x, z int32) ([]byte, error) {
	data, err := w.column(x, z)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.refs[session.ChunkPos{X: x, Z: z}]++
	w.mu.Unlock()
	return data, nil
}

// UnloadChunk releases one hold on the column. The encoding stays cached
// until its TTL runs out.
func (w *FlatWorld) UnloadChunk(x, z int32) {
	pos := session.ChunkPos{X: x, Z: z}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch n := w.refs[pos]; {
	case n <= 0:
		w.logger.Debug().Int32("x", x).Int32("z", z).Msg("unload of column that is not held")
	case n == 1:
		delete(w.refs, pos)
	default:
		w.refs[pos] = n - 1
	}
}

// Held returns how many sessions hold the column.
func (w *FlatWorld) Held(x, z int32) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refs[session.ChunkPos{X: x, Z: z}]
}

// Loaded returns the number of columns held by at least one session.
func (w *FlatWorld) Loaded() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.refs)
}

// Prefetch encodes the given columns in parallel so later ChunkData calls
// hit the cache.
func (w *FlatWorld) Prefetch(ctx context.Context, positions []session.ChunkPos) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range positions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := w.column(p.X, p.Z)
			return err
		})
	}
	return g.Wait()
}

// SpawnArea lists the columns within radius of the column containing pos.
func SpawnArea(pos session.Vec3, radius int) []session.ChunkPos {
	center := pos.Chunk()
	var out []session.ChunkPos
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			if dx*dx+dz*dz <= radius*radius {
				out = append(out, session.ChunkPos{X: center.X + int32(dx), Z: center.Z + int32(dz)})
			}
		}
	}
	return out
}

func (w *FlatWorld) column(x, z int32) ([]byte, error) {
	key := chunkKey(x, z)
	if v, found := w.cache.Get(key); found {
		return v.([]byte), nil
	}
	v, err, _ := w.group.Do(key, func() (interface{}, error) {
		if cached, found := w.cache.Get(key); found {
			return cached, nil
		}
		data := w.encode()
		w.cache.Set(key, data, w.ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// encode builds a column in the client's full chunk layout: block ids,
// block data, sky light and block light indexed (x<<11)|(z<<7)|y, then the
// height map, per column biome colors and an empty extra data table.
func (w *FlatWorld) encode() []byte {
	blocks := make([]byte, blockCount)
	skyLight := bytes.Repeat([]byte{0xff}, nibbleCount)
	height := byte(len(w.layers))
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			base := x<<11 | z<<7
			copy(blocks[base:base+len(w.layers)], w.layers)
		}
	}
	for i := range skyLight {
		// columns below the surface are dark
		y := (i * 2) & (ColumnHeight - 1)
		if y < len(w.layers) {
			skyLight[i] = 0
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, blockCount+3*nibbleCount+256+1024+4))
	buf.Write(blocks)
	buf.Write(make([]byte, nibbleCount)) // block data
	buf.Write(skyLight)
	buf.Write(make([]byte, nibbleCount)) // block light
	buf.Write(bytes.Repeat([]byte{height}, 256))
	var color [4]byte
	binary.BigEndian.PutUint32(color[:], plainsBiome<<24|grassColor)
	for i := 0; i < 256; i++ {
		buf.Write(color[:])
	}
	// extra data count, little endian on the wire
	buf.Write([]byte{0, 0, 0, 0})
	return buf.Bytes()
}
