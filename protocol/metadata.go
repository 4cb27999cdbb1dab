package protocol

import (
	"fmt"
	"sort"
)

// Metadata value tags. Each entry on the wire is a header byte
// (tag<<5 | key&0x1f) followed by the value; the block ends with MetadataEnd.
const (
	MetaByte   byte = 0
	MetaShort  byte = 1
	MetaInt    byte = 2
	MetaFloat  byte = 3
	MetaString byte = 4
	MetaSlot   byte = 5
	MetaPos    byte = 6
	MetaLong   byte = 7

	MetadataEnd byte = 0x7f

	MaxMetadataKey = 0x1f
)

// Entity data keys used by player and mob metadata.
const (
	DataFlags       byte = 0
	DataAir         byte = 1
	DataNameTag     byte = 2
	DataShowNameTag byte = 3
	DataSilent      byte = 4
	DataNoAI        byte = 15
)

// Slot is an item stack as carried in metadata and container packets.
type Slot struct {
	ID     int16
	Count  byte
	Damage int16
}

// BlockPos is an integer block coordinate.
type BlockPos struct {
	X, Y, Z int32
}

// MetadataEntry holds one tagged value. Value must match Type:
// byte, int16, int32, float32, string, Slot, BlockPos or int64.
type MetadataEntry struct {
	Type  byte
	Value any
}

// Metadata is an entity property list keyed by property id (0-31).
type Metadata map[byte]MetadataEntry

func (w *Writer) Slot(s Slot) {
	w.Int16(s.ID)
	w.Byte(s.Count)
	w.Int16(s.Damage)
}

func (r *Reader) Slot() Slot {
	return Slot{ID: r.Int16(), Count: r.Byte(), Damage: r.Int16()}
}

// Metadata writes entries in ascending key order so encodings are stable.
// Entries whose value does not match their tag are skipped, as is a float
// at key 31.
func (w *Writer) Metadata(m Metadata) {
	keys := make([]int, 0, len(m))
	for k := range m {
		if k <= MaxMetadataKey {
			keys = append(keys, int(k))
		}
	}
	sort.Ints(keys)

	for _, k := range keys {
		e := m[byte(k)]
		header := e.Type<<5 | byte(k)&MaxMetadataKey
		if header == MetadataEnd {
			// float at key 31 is indistinguishable from the terminator
			continue
		}
		switch v := e.Value.(type) {
		case byte:
			if e.Type != MetaByte {
				continue
			}
			w.Byte(header)
			w.Byte(v)
		case int16:
			if e.Type != MetaShort {
				continue
			}
			w.Byte(header)
			w.Int16(v)
		case int32:
			if e.Type != MetaInt {
				continue
			}
			w.Byte(header)
			w.Int(v)
		case float32:
			if e.Type != MetaFloat {
				continue
			}
			w.Byte(header)
			w.Float(v)
		case string:
			if e.Type != MetaString {
				continue
			}
			w.Byte(header)
			w.String(v)
		case Slot:
			if e.Type != MetaSlot {
				continue
			}
			w.Byte(header)
			w.Slot(v)
		case BlockPos:
			if e.Type != MetaPos {
				continue
			}
			w.Byte(header)
			w.Int(v.X)
			w.Int(v.Y)
			w.Int(v.Z)
		case int64:
			if e.Type != MetaLong {
				continue
			}
			w.Byte(header)
			w.Long(v)
		}
	}
	w.Byte(MetadataEnd)
}

// Metadata reads a self-describing property list up to the end marker.
func (r *Reader) Metadata() Metadata {
	m := make(Metadata)
	for {
		header := r.Byte()
		if r.err != nil {
			return m
		}
		if header == MetadataEnd {
			return m
		}
		tag := header >> 5
		key := header & MaxMetadataKey

		var v any
		switch tag {
		case MetaByte:
			v = r.Byte()
		case MetaShort:
			v = r.Int16()
		case MetaInt:
			v = r.Int()
		case MetaFloat:
			v = r.Float()
		case MetaString:
			v = r.String()
		case MetaSlot:
			v = r.Slot()
		case MetaPos:
			v = BlockPos{X: r.Int(), Y: r.Int(), Z: r.Int()}
		case MetaLong:
			v = r.Long()
		default:
			r.Fail(fmt.Errorf("%w: unknown metadata tag %d for key %d", ErrMalformedField, tag, key))
			return m
		}
		if r.err != nil {
			return m
		}
		m[key] = MetadataEntry{Type: tag, Value: v}
	}
}

// EntityLink ties two entities together (riding, leashing).
type EntityLink struct {
	From int64
	To   int64
	Type byte
}

// Links writes a 16-bit count followed by each link.
func (w *Writer) Links(links []EntityLink) {
	w.Short(uint16(len(links)))
	for _, l := range links {
		w.Long(l.From)
		w.Long(l.To)
		w.Byte(l.Type)
	}
}

func (r *Reader) Links() []EntityLink {
	n := int(r.Short())
	if r.err != nil || n == 0 {
		return nil
	}
	// 17 bytes per link; refuse counts the buffer cannot hold before allocating.
	if n*17 > r.Remaining() {
		r.Fail(fmt.Errorf("%w: link count %d exceeds remaining %d bytes", ErrMalformedField, n, r.Remaining()))
		return nil
	}
	links := make([]EntityLink, 0, n)
	for i := 0; i < n; i++ {
		links = append(links, EntityLink{From: r.Long(), To: r.Long(), Type: r.Byte()})
	}
	return links
}
