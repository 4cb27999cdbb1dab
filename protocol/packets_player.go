package protocol

import (
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoginPacket is the first packet a client sends.
type LoginPacket struct {
	Username      string
	Protocol      int32
	ClientID      int64
	ClientUUID    uuid.UUID
	ServerAddress string
	ClientSecret  string
	ClientData    []byte // JSON, see ClientData
}

func (*LoginPacket) ID() byte { return LoginPacketID }

func (pk *LoginPacket) Encode(w *Writer) {
	w.String(pk.Username)
	w.Int(pk.Protocol)
	w.Long(pk.ClientID)
	w.UUID(pk.ClientUUID)
	w.String(pk.ServerAddress)
	w.String(pk.ClientSecret)
	w.ByteArray(pk.ClientData)
}

func (pk *LoginPacket) Decode(r *Reader) error {
	pk.Username = r.String()
	pk.Protocol = r.Int()
	pk.ClientID = r.Long()
	pk.ClientUUID = r.UUID()
	pk.ServerAddress = r.String()
	pk.ClientSecret = r.String()
	pk.ClientData = r.ByteArray()
	return r.Err()
}

// ClientData describes the connecting device.
type ClientData struct {
	DeviceOS     int    `json:"DeviceOS"`
	DeviceModel  string `json:"DeviceModel"`
	GameVersion  string `json:"GameVersion"`
	LanguageCode string `json:"LanguageCode"`
	SkinID       string `json:"SkinId"`
}

// ParseClientData decodes the JSON blob carried by the login packet.
// An empty blob yields a zero ClientData.
func (pk *LoginPacket) ParseClientData() (ClientData, error) {
	var cd ClientData
	if len(pk.ClientData) == 0 {
		return cd, nil
	}
	if err := json.Unmarshal(pk.ClientData, &cd); err != nil {
		return cd, fmt.Errorf("unmarshal client data: %w", err)
	}
	return cd, nil
}

// SetClientData encodes cd into the login packet.
func (pk *LoginPacket) SetClientData(cd ClientData) error {
	data, err := json.Marshal(cd)
	if err != nil {
		return fmt.Errorf("marshal client data: %w", err)
	}
	pk.ClientData = data
	return nil
}

type PlayStatusPacket struct {
	Status int32
}

func (*PlayStatusPacket) ID() byte { return PlayStatusPacketID }

func (pk *PlayStatusPacket) Encode(w *Writer) {
	w.Int(pk.Status)
}

func (pk *PlayStatusPacket) Decode(r *Reader) error {
	pk.Status = r.Int()
	return r.Err()
}

type DisconnectPacket struct {
	Message string
}

func (*DisconnectPacket) ID() byte { return DisconnectPacketID }

func (pk *DisconnectPacket) Encode(w *Writer) {
	w.String(pk.Message)
}

func (pk *DisconnectPacket) Decode(r *Reader) error {
	pk.Message = r.String()
	return r.Err()
}

type StartGamePacket struct {
	Seed      int32
	Dimension byte
	Generator int32
	GameMode  int32
	EntityID  int64
	SpawnX    int32
	SpawnY    int32
	SpawnZ    int32
	X         float32
	Y         float32
	Z         float32
}

func (*StartGamePacket) ID() byte { return StartGamePacketID }

func (pk *StartGamePacket) Encode(w *Writer) {
	w.Int(pk.Seed)
	w.Byte(pk.Dimension)
	w.Int(pk.Generator)
	w.Int(pk.GameMode)
	w.Long(pk.EntityID)
	w.Int(pk.SpawnX)
	w.Int(pk.SpawnY)
	w.Int(pk.SpawnZ)
	w.Float(pk.X)
	w.Float(pk.Y)
	w.Float(pk.Z)
}

func (pk *StartGamePacket) Decode(r *Reader) error {
	pk.Seed = r.Int()
	pk.Dimension = r.Byte()
	pk.Generator = r.Int()
	pk.GameMode = r.Int()
	pk.EntityID = r.Long()
	pk.SpawnX = r.Int()
	pk.SpawnY = r.Int()
	pk.SpawnZ = r.Int()
	pk.X = r.Float()
	pk.Y = r.Float()
	pk.Z = r.Float()
	return r.Err()
}

type TextPacket struct {
	Type    byte
	Source  string
	Message string
}

func (*TextPacket) ID() byte { return TextPacketID }

func (pk *TextPacket) Encode(w *Writer) {
	w.Byte(pk.Type)
	w.String(pk.Source)
	w.String(pk.Message)
}

func (pk *TextPacket) Decode(r *Reader) error {
	pk.Type = r.Byte()
	pk.Source = r.String()
	pk.Message = r.String()
	return r.Err()
}

type SetTimePacket struct {
	Time    int32
	Started bool
}

func (*SetTimePacket) ID() byte { return SetTimePacketID }

func (pk *SetTimePacket) Encode(w *Writer) {
	w.Int(pk.Time)
	w.Bool(pk.Started)
}

func (pk *SetTimePacket) Decode(r *Reader) error {
	pk.Time = r.Int()
	pk.Started = r.Bool()
	return r.Err()
}

type SetDifficultyPacket struct {
	Difficulty int32
}

func (*SetDifficultyPacket) ID() byte { return SetDifficultyPacketID }

func (pk *SetDifficultyPacket) Encode(w *Writer) {
	w.Int(pk.Difficulty)
}

func (pk *SetDifficultyPacket) Decode(r *Reader) error {
	pk.Difficulty = r.Int()
	return r.Err()
}

type SetPlayerGameTypePacket struct {
	GameMode int32
}

func (*SetPlayerGameTypePacket) ID() byte { return SetPlayerGameTypeID }

func (pk *SetPlayerGameTypePacket) Encode(w *Writer) {
	w.Int(pk.GameMode)
}

func (pk *SetPlayerGameTypePacket) Decode(r *Reader) error {
	pk.GameMode = r.Int()
	return r.Err()
}

// Adventure settings flags.
const (
	AdventureWorldImmutable int32 = 0x01
	AdventureNoPvP          int32 = 0x02
	AdventureAutoJump       int32 = 0x20
	AdventureAllowFlight    int32 = 0x40
	AdventureNoClip         int32 = 0x80
)

type AdventureSettingsPacket struct {
	Flags int32
}

func (*AdventureSettingsPacket) ID() byte { return AdventureSettingsID }

func (pk *AdventureSettingsPacket) Encode(w *Writer) {
	w.Int(pk.Flags)
}

func (pk *AdventureSettingsPacket) Decode(r *Reader) error {
	pk.Flags = r.Int()
	return r.Err()
}

type SetSpawnPositionPacket struct {
	X, Y, Z int32
}

func (*SetSpawnPositionPacket) ID() byte { return SetSpawnPositionPacketID }

func (pk *SetSpawnPositionPacket) Encode(w *Writer) {
	w.Int(pk.X)
	w.Int(pk.Y)
	w.Int(pk.Z)
}

func (pk *SetSpawnPositionPacket) Decode(r *Reader) error {
	pk.X = r.Int()
	pk.Y = r.Int()
	pk.Z = r.Int()
	return r.Err()
}

type SetHealthPacket struct {
	Health int32
}

func (*SetHealthPacket) ID() byte { return SetHealthPacketID }

func (pk *SetHealthPacket) Encode(w *Writer) {
	w.Int(pk.Health)
}

func (pk *SetHealthPacket) Decode(r *Reader) error {
	pk.Health = r.Int()
	return r.Err()
}

type RespawnPacket struct {
	X, Y, Z float32
}

func (*RespawnPacket) ID() byte { return RespawnPacketID }

func (pk *RespawnPacket) Encode(w *Writer) {
	w.Float(pk.X)
	w.Float(pk.Y)
	w.Float(pk.Z)
}

func (pk *RespawnPacket) Decode(r *Reader) error {
	pk.X = r.Float()
	pk.Y = r.Float()
	pk.Z = r.Float()
	return r.Err()
}

// RequestChunkRadiusPacket is sent by the client to ask for a view distance.
type RequestChunkRadiusPacket struct {
	Radius int32
}

func (*RequestChunkRadiusPacket) ID() byte { return RequestChunkRadiusID }

func (pk *RequestChunkRadiusPacket) Encode(w *Writer) {
	w.Int(pk.Radius)
}

func (pk *RequestChunkRadiusPacket) Decode(r *Reader) error {
	pk.Radius = r.Int()
	return r.Err()
}

// ChunkRadiusUpdatedPacket tells the client the view distance it was granted.
type ChunkRadiusUpdatedPacket struct {
	Radius int32
}

func (*ChunkRadiusUpdatedPacket) ID() byte { return ChunkRadiusUpdatedID }

func (pk *ChunkRadiusUpdatedPacket) Encode(w *Writer) {
	w.Int(pk.Radius)
}

func (pk *ChunkRadiusUpdatedPacket) Decode(r *Reader) error {
	pk.Radius = r.Int()
	return r.Err()
}
