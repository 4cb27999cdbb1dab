package protocol

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Batch payload format (after inflating):
// [4 bytes BE length][sub-packet bytes] repeated until the payload ends.
const (
	DefaultBatchThreshold   = 512
	DefaultMaxBatchSize     = 64 * 1024 * 1024
	DefaultCompressionLevel = 7

	batchLengthSize = 4
)

// BatchPacket carries a compressed sequence of length-prefixed packets.
type BatchPacket struct {
	Payload []byte
}

func (*BatchPacket) ID() byte { return BatchPacketID }

func (pk *BatchPacket) Encode(w *Writer) {
	w.ByteArray(pk.Payload)
}

func (pk *BatchPacket) Decode(r *Reader) error {
	pk.Payload = r.ByteArray()
	return r.Err()
}

// BatchConfig tunes a BatchPipeline. Zero fields take the package defaults.
type BatchConfig struct {
	Threshold        int
	MaxDecompressed  int64
	CompressionLevel int
}

// SplitStats summarises one inbound batch.
type SplitStats struct {
	Entries   int // length-prefixed entries found
	Decoded   int // packets handed to the callback
	Unknown   int // entries with unregistered ids
	Malformed int // entries skipped because decoding failed
	Stopped   bool
}

// BatchPipeline aggregates outbound packets into compressed batches and
// splits inbound batches back into packets. It holds no per-connection state
// and is safe for concurrent use.
type BatchPipeline struct {
	registry  *Registry
	threshold int
	maxSize   int64
	level     int
	logger    zerolog.Logger
}

// NewBatchPipeline creates a pipeline decoding through registry.
func NewBatchPipeline(registry *Registry, conf BatchConfig, logger zerolog.Logger) *BatchPipeline {
	if conf.Threshold <= 0 {
		conf.Threshold = DefaultBatchThreshold
	}
	if conf.MaxDecompressed <= 0 {
		conf.MaxDecompressed = DefaultMaxBatchSize
	}
	if conf.CompressionLevel < zlib.HuffmanOnly || conf.CompressionLevel > zlib.BestCompression || conf.CompressionLevel == 0 {
		conf.CompressionLevel = DefaultCompressionLevel
	}
	return &BatchPipeline{
		registry:  registry,
		threshold: conf.Threshold,
		maxSize:   conf.MaxDecompressed,
		level:     conf.CompressionLevel,
		logger:    logger.With().Str("com", "batch").Logger(),
	}
}

// Registry returns the registry used for decoding.
func (p *BatchPipeline) Registry() *Registry {
	return p.registry
}

// Pack encodes packets into transport frames. When the encoded size exceeds
// the threshold all packets travel in one compressed batch; otherwise each
// packet is its own frame.
func (p *BatchPipeline) Pack(packets []Packet) ([][]byte, error) {
	if len(packets) == 0 {
		return nil, nil
	}
	encoded := make([][]byte, len(packets))
	total := 0
	for i, pk := range packets {
		encoded[i] = Marshal(pk)
		total += len(encoded[i])
	}
	if total <= p.threshold {
		return encoded, nil
	}

	batch, err := p.Compress(encoded)
	if err != nil {
		return nil, err
	}
	return [][]byte{Marshal(batch)}, nil
}

// Compress wraps already encoded packets into a single batch packet.
func (p *BatchPipeline) Compress(encoded [][]byte) (*BatchPacket, error) {
	size := 0
	for _, e := range encoded {
		size += batchLengthSize + len(e)
	}
	raw := GetBufferWithSize(size)
	defer PutBuffer(raw)

	var header [batchLengthSize]byte
	for _, e := range encoded {
		binary.BigEndian.PutUint32(header[:], uint32(len(e)))
		raw.Write(header[:])
		raw.Write(e)
	}

	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, p.level)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish batch: %w", err)
	}
	return &BatchPacket{Payload: out.Bytes()}, nil
}

// Inflate decompresses a batch payload, refusing output larger than the
// configured maximum.
func (p *BatchPipeline) Inflate(payload []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: open batch stream: %v", ErrMalformedField, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, p.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate batch: %v", ErrMalformedField, err)
	}
	if int64(len(data)) > p.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrOversizedBatch, p.maxSize)
	}
	return data, nil
}

// Split inflates batch and calls handle for every decodable sub-packet in
// order.
//
// A sub-packet carrying the batch id rejects the whole batch before anything
// is handled. Unknown ids are skipped silently. A sub-packet that fails to
// decode, or leaves part of its entry unread, is skipped and iteration
// resumes at the next declared length. A
// decoder that consumes nothing from a non-empty body stops the batch
// without an error; Stopped is set in the returned stats.
func (p *BatchPipeline) Split(batch *BatchPacket, handle func(Packet)) (SplitStats, error) {
	var stats SplitStats

	data, err := p.Inflate(batch.Payload)
	if err != nil {
		return stats, err
	}

	entries, scanErr := scanEntries(data)
	stats.Entries = len(entries)
	for _, e := range entries {
		if len(e) > 0 && e[0] == BatchPacketID {
			p.logger.Debug().
				Str("payload", hex.EncodeToString(batch.Payload)).
				Msg("batch packet inside batch packet")
			return stats, ErrNestedBatch
		}
	}

	for i, e := range entries {
		if len(e) == 0 {
			stats.Malformed++
			continue
		}
		pk, ok := p.registry.Lookup(e[0])
		if !ok {
			stats.Unknown++
			continue
		}
		consumed, err := Unmarshal(e, pk)
		if err != nil {
			stats.Malformed++
			p.logger.Debug().Err(err).Int("entry", i).Msg("skipping malformed sub-packet")
			continue
		}
		if consumed <= 0 && len(e) > 1 {
			p.logger.Debug().
				Err(fmt.Errorf("%w: entry %d id 0x%02x", ErrNoProgress, i, e[0])).
				Int("remaining", len(entries)-i).
				Msg("stopping batch")
			stats.Stopped = true
			return stats, nil
		}
		if err := checkTrailing(pk, consumed, len(e)-1); err != nil {
			stats.Malformed++
			p.logger.Debug().Err(err).Int("entry", i).Msg("skipping malformed sub-packet")
			continue
		}
		stats.Decoded++
		handle(pk)
	}

	return stats, scanErr
}

// scanEntries slices data into length-prefixed entries. Entries before a
// truncated header or body are still returned alongside the error.
func scanEntries(data []byte) ([][]byte, error) {
	var entries [][]byte
	offset := 0
	for offset < len(data) {
		if len(data)-offset < batchLengthSize {
			return entries, fmt.Errorf("%w: truncated length at offset %d", ErrMalformedField, offset)
		}
		n := binary.BigEndian.Uint32(data[offset:])
		offset += batchLengthSize
		if uint64(n) > uint64(len(data)-offset) {
			return entries, fmt.Errorf("%w: entry of %d bytes at offset %d, have %d",
				ErrMalformedField, n, offset, len(data)-offset)
		}
		entries = append(entries, data[offset:offset+int(n)])
		offset += int(n)
	}
	return entries, nil
}

// Unpack decodes one raw transport frame, splitting it if it is a batch.
func (p *BatchPipeline) Unpack(raw []byte, handle func(Packet)) (SplitStats, error) {
	pk, ok, err := p.registry.Decode(raw)
	if err != nil {
		return SplitStats{Entries: 1, Malformed: 1}, err
	}
	if !ok {
		return SplitStats{Entries: 1, Unknown: 1}, nil
	}
	if batch, isBatch := pk.(*BatchPacket); isBatch {
		return p.Split(batch, handle)
	}
	handle(pk)
	return SplitStats{Entries: 1, Decoded: 1}, nil
}

// Decoded is the outcome of unpacking one raw frame off the tick goroutine.
type Decoded struct {
	Packets []Packet
	Stats   SplitStats
	Err     error
}

// UnpackAll unpacks frames concurrently. Results are returned in input order;
// failures are reported per frame and never abort the others.
func (p *BatchPipeline) UnpackAll(ctx context.Context, frames [][]byte) []Decoded {
	results := make([]Decoded, len(frames))
	if len(frames) == 1 {
		results[0] = p.unpackCollect(frames[0])
		return results
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, frame := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Decoded{Err: err}
				return nil
			}
			results[i] = p.unpackCollect(frame)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *BatchPipeline) unpackCollect(frame []byte) Decoded {
	var d Decoded
	d.Stats, d.Err = p.Unpack(frame, func(pk Packet) {
		d.Packets = append(d.Packets, pk)
	})
	return d
}

// IsRejected reports whether err discarded an entire batch.
func IsRejected(err error) bool {
	return errors.Is(err, ErrNestedBatch) || errors.Is(err, ErrOversizedBatch)
}
