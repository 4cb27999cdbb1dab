package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

type AddPlayerPacket struct {
	UUID     uuid.UUID
	Username string
	EntityID int64
	X, Y, Z  float32
	SpeedX   float32
	SpeedY   float32
	SpeedZ   float32
	Yaw      float32
	HeadYaw  float32
	Pitch    float32
	Item     Slot
	Metadata Metadata
}

func (*AddPlayerPacket) ID() byte { return AddPlayerPacketID }

func (pk *AddPlayerPacket) Encode(w *Writer) {
	w.UUID(pk.UUID)
	w.String(pk.Username)
	w.Long(pk.EntityID)
	w.Float(pk.X)
	w.Float(pk.Y)
	w.Float(pk.Z)
	w.Float(pk.SpeedX)
	w.Float(pk.SpeedY)
	w.Float(pk.SpeedZ)
	w.Float(pk.Yaw)
	w.Float(pk.HeadYaw)
	w.Float(pk.Pitch)
	w.Slot(pk.Item)
	w.Metadata(pk.Metadata)
}

func (pk *AddPlayerPacket) Decode(r *Reader) error {
	pk.UUID = r.UUID()
	pk.Username = r.String()
	pk.EntityID = r.Long()
	pk.X = r.Float()
	pk.Y = r.Float()
	pk.Z = r.Float()
	pk.SpeedX = r.Float()
	pk.SpeedY = r.Float()
	pk.SpeedZ = r.Float()
	pk.Yaw = r.Float()
	pk.HeadYaw = r.Float()
	pk.Pitch = r.Float()
	pk.Item = r.Slot()
	pk.Metadata = r.Metadata()
	return r.Err()
}

type RemovePlayerPacket struct {
	EntityID int64
	UUID     uuid.UUID
}

func (*RemovePlayerPacket) ID() byte { return RemovePlayerPacketID }

func (pk *RemovePlayerPacket) Encode(w *Writer) {
	w.Long(pk.EntityID)
	w.UUID(pk.UUID)
}

func (pk *RemovePlayerPacket) Decode(r *Reader) error {
	pk.EntityID = r.Long()
	pk.UUID = r.UUID()
	return r.Err()
}

type AddEntityPacket struct {
	EntityID int64
	Type     int32
	X, Y, Z  float32
	SpeedX   float32
	SpeedY   float32
	SpeedZ   float32
	Yaw      float32
	Pitch    float32
	Metadata Metadata
	Links    []EntityLink
}

func (*AddEntityPacket) ID() byte { return AddEntityPacketID }

func (pk *AddEntityPacket) Encode(w *Writer) {
	w.Long(pk.EntityID)
	w.Int(pk.Type)
	w.Float(pk.X)
	w.Float(pk.Y)
	w.Float(pk.Z)
	w.Float(pk.SpeedX)
	w.Float(pk.SpeedY)
	w.Float(pk.SpeedZ)
	w.Float(pk.Yaw)
	w.Float(pk.Pitch)
	w.Metadata(pk.Metadata)
	w.Links(pk.Links)
}

func (pk *AddEntityPacket) Decode(r *Reader) error {
	pk.EntityID = r.Long()
	pk.Type = r.Int()
	pk.X = r.Float()
	pk.Y = r.Float()
	pk.Z = r.Float()
	pk.SpeedX = r.Float()
	pk.SpeedY = r.Float()
	pk.SpeedZ = r.Float()
	pk.Yaw = r.Float()
	pk.Pitch = r.Float()
	pk.Metadata = r.Metadata()
	pk.Links = r.Links()
	return r.Err()
}

type RemoveEntityPacket struct {
	EntityID int64
}

func (*RemoveEntityPacket) ID() byte { return RemoveEntityPacketID }

func (pk *RemoveEntityPacket) Encode(w *Writer) {
	w.Long(pk.EntityID)
}

func (pk *RemoveEntityPacket) Decode(r *Reader) error {
	pk.EntityID = r.Long()
	return r.Err()
}

// EntityMotion is one position update carried by MoveEntityPacket.
type EntityMotion struct {
	EntityID int64
	X, Y, Z  float32
	Yaw      float32
	HeadYaw  float32
	Pitch    float32
}

type MoveEntityPacket struct {
	Entities []EntityMotion
}

func (*MoveEntityPacket) ID() byte { return MoveEntityPacketID }

func (pk *MoveEntityPacket) Encode(w *Writer) {
	w.Short(uint16(len(pk.Entities)))
	for _, e := range pk.Entities {
		w.Long(e.EntityID)
		w.Float(e.X)
		w.Float(e.Y)
		w.Float(e.Z)
		w.Float(e.Yaw)
		w.Float(e.HeadYaw)
		w.Float(e.Pitch)
	}
}

func (pk *MoveEntityPacket) Decode(r *Reader) error {
	n := int(r.Short())
	if r.Err() != nil || n == 0 {
		pk.Entities = nil
		return r.Err()
	}
	if n*32 > r.Remaining() {
		return fmt.Errorf("%w: %d entity motions in %d bytes", ErrMalformedField, n, r.Remaining())
	}
	pk.Entities = make([]EntityMotion, n)
	for i := range pk.Entities {
		pk.Entities[i] = EntityMotion{
			EntityID: r.Long(),
			X:        r.Float(),
			Y:        r.Float(),
			Z:        r.Float(),
			Yaw:      r.Float(),
			HeadYaw:  r.Float(),
			Pitch:    r.Float(),
		}
	}
	return r.Err()
}

type MovePlayerPacket struct {
	EntityID int64
	X, Y, Z  float32
	Yaw      float32
	BodyYaw  float32
	Pitch    float32
	Mode     byte
	OnGround bool
}

func (*MovePlayerPacket) ID() byte { return MovePlayerPacketID }

func (pk *MovePlayerPacket) Encode(w *Writer) {
	w.Long(pk.EntityID)
	w.Float(pk.X)
	w.Float(pk.Y)
	w.Float(pk.Z)
	w.Float(pk.Yaw)
	w.Float(pk.BodyYaw)
	w.Float(pk.Pitch)
	w.Byte(pk.Mode)
	w.Bool(pk.OnGround)
}

func (pk *MovePlayerPacket) Decode(r *Reader) error {
	pk.EntityID = r.Long()
	pk.X = r.Float()
	pk.Y = r.Float()
	pk.Z = r.Float()
	pk.Yaw = r.Float()
	pk.BodyYaw = r.Float()
	pk.Pitch = r.Float()
	pk.Mode = r.Byte()
	pk.OnGround = r.Bool()
	return r.Err()
}

type SetEntityDataPacket struct {
	EntityID int64
	Metadata Metadata
}

func (*SetEntityDataPacket) ID() byte { return SetEntityDataPacketID }

func (pk *SetEntityDataPacket) Encode(w *Writer) {
	w.Long(pk.EntityID)
	w.Metadata(pk.Metadata)
}

func (pk *SetEntityDataPacket) Decode(r *Reader) error {
	pk.EntityID = r.Long()
	pk.Metadata = r.Metadata()
	return r.Err()
}

type SetEntityLinkPacket struct {
	Link EntityLink
}

func (*SetEntityLinkPacket) ID() byte { return SetEntityLinkPacketID }

func (pk *SetEntityLinkPacket) Encode(w *Writer) {
	w.Long(pk.Link.From)
	w.Long(pk.Link.To)
	w.Byte(pk.Link.Type)
}

func (pk *SetEntityLinkPacket) Decode(r *Reader) error {
	pk.Link = EntityLink{From: r.Long(), To: r.Long(), Type: r.Byte()}
	return r.Err()
}

type AnimatePacket struct {
	Action   byte
	EntityID int64
}

func (*AnimatePacket) ID() byte { return AnimatePacketID }

func (pk *AnimatePacket) Encode(w *Writer) {
	w.Byte(pk.Action)
	w.Long(pk.EntityID)
}

func (pk *AnimatePacket) Decode(r *Reader) error {
	pk.Action = r.Byte()
	pk.EntityID = r.Long()
	return r.Err()
}
