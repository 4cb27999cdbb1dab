package protocol

import "fmt"

// Block update flags.
const (
	BlockFlagNeighbors byte = 0x01
	BlockFlagNetwork   byte = 0x02
	BlockFlagPriority  byte = 0x08
)

type BlockRecord struct {
	X     int32
	Z     int32
	Y     byte
	Block byte
	Data  byte
	Flags byte
}

type UpdateBlockPacket struct {
	Records []BlockRecord
}

func (*UpdateBlockPacket) ID() byte { return UpdateBlockPacketID }

func (pk *UpdateBlockPacket) Encode(w *Writer) {
	w.Short(uint16(len(pk.Records)))
	for _, rec := range pk.Records {
		w.Int(rec.X)
		w.Int(rec.Z)
		w.Byte(rec.Y)
		w.Byte(rec.Block)
		w.Byte(rec.Data)
		w.Byte(rec.Flags)
	}
}

func (pk *UpdateBlockPacket) Decode(r *Reader) error {
	n := int(r.Short())
	if r.Err() != nil || n == 0 {
		pk.Records = nil
		return r.Err()
	}
	if n*12 > r.Remaining() {
		return fmt.Errorf("%w: %d block records in %d bytes", ErrMalformedField, n, r.Remaining())
	}
	pk.Records = make([]BlockRecord, n)
	for i := range pk.Records {
		pk.Records[i] = BlockRecord{
			X:     r.Int(),
			Z:     r.Int(),
			Y:     r.Byte(),
			Block: r.Byte(),
			Data:  r.Byte(),
			Flags: r.Byte(),
		}
	}
	return r.Err()
}

// Chunk data orders.
const (
	ChunkOrderColumns byte = 0
	ChunkOrderLayered byte = 1
)

type FullChunkDataPacket struct {
	ChunkX int32
	ChunkZ int32
	Order  byte
	Data   []byte
}

func (*FullChunkDataPacket) ID() byte { return FullChunkDataPacketID }

func (pk *FullChunkDataPacket) Encode(w *Writer) {
	w.Int(pk.ChunkX)
	w.Int(pk.ChunkZ)
	w.Byte(pk.Order)
	w.ByteArray(pk.Data)
}

func (pk *FullChunkDataPacket) Decode(r *Reader) error {
	pk.ChunkX = r.Int()
	pk.ChunkZ = r.Int()
	pk.Order = r.Byte()
	pk.Data = r.ByteArray()
	return r.Err()
}

type ContainerOpenPacket struct {
	WindowID byte
	Type     byte
	Slots    int16
	X, Y, Z  int32
}

func (*ContainerOpenPacket) ID() byte { return ContainerOpenPacketID }

func (pk *ContainerOpenPacket) Encode(w *Writer) {
	w.Byte(pk.WindowID)
	w.Byte(pk.Type)
	w.Int16(pk.Slots)
	w.Int(pk.X)
	w.Int(pk.Y)
	w.Int(pk.Z)
}

func (pk *ContainerOpenPacket) Decode(r *Reader) error {
	pk.WindowID = r.Byte()
	pk.Type = r.Byte()
	pk.Slots = r.Int16()
	pk.X = r.Int()
	pk.Y = r.Int()
	pk.Z = r.Int()
	return r.Err()
}

type ContainerClosePacket struct {
	WindowID byte
}

func (*ContainerClosePacket) ID() byte { return ContainerClosePacketID }

func (pk *ContainerClosePacket) Encode(w *Writer) {
	w.Byte(pk.WindowID)
}

func (pk *ContainerClosePacket) Decode(r *Reader) error {
	pk.WindowID = r.Byte()
	return r.Err()
}

type ContainerSetSlotPacket struct {
	WindowID   byte
	Slot       int16
	HotbarSlot int16
	Item       Slot
}

func (*ContainerSetSlotPacket) ID() byte { return ContainerSetSlotPacketID }

func (pk *ContainerSetSlotPacket) Encode(w *Writer) {
	w.Byte(pk.WindowID)
	w.Int16(pk.Slot)
	w.Int16(pk.HotbarSlot)
	w.Slot(pk.Item)
}

func (pk *ContainerSetSlotPacket) Decode(r *Reader) error {
	pk.WindowID = r.Byte()
	pk.Slot = r.Int16()
	pk.HotbarSlot = r.Int16()
	pk.Item = r.Slot()
	return r.Err()
}
