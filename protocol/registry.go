package protocol

import (
	"fmt"
	"sync"
)

// Factory returns a new, zeroed packet value.
type Factory func() Packet

// Registry maps packet ids to factories. It is filled once at startup and
// read from every session afterwards; Register exists for setup and
// protocol-version overrides.
type Registry struct {
	mu    sync.RWMutex
	table [256]Factory
}

// NewRegistry returns a registry holding every packet this server speaks.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(LoginPacketID, func() Packet { return &LoginPacket{} })
	r.Register(PlayStatusPacketID, func() Packet { return &PlayStatusPacket{} })
	r.Register(DisconnectPacketID, func() Packet { return &DisconnectPacket{} })
	r.Register(BatchPacketID, func() Packet { return &BatchPacket{} })
	r.Register(TextPacketID, func() Packet { return &TextPacket{} })
	r.Register(SetTimePacketID, func() Packet { return &SetTimePacket{} })
	r.Register(StartGamePacketID, func() Packet { return &StartGamePacket{} })
	r.Register(AddPlayerPacketID, func() Packet { return &AddPlayerPacket{} })
	r.Register(RemovePlayerPacketID, func() Packet { return &RemovePlayerPacket{} })
	r.Register(AddEntityPacketID, func() Packet { return &AddEntityPacket{} })
	r.Register(RemoveEntityPacketID, func() Packet { return &RemoveEntityPacket{} })
	r.Register(MoveEntityPacketID, func() Packet { return &MoveEntityPacket{} })
	r.Register(MovePlayerPacketID, func() Packet { return &MovePlayerPacket{} })
	r.Register(UpdateBlockPacketID, func() Packet { return &UpdateBlockPacket{} })
	r.Register(SetEntityDataPacketID, func() Packet { return &SetEntityDataPacket{} })
	r.Register(SetEntityLinkPacketID, func() Packet { return &SetEntityLinkPacket{} })
	r.Register(SetHealthPacketID, func() Packet { return &SetHealthPacket{} })
	r.Register(SetSpawnPositionPacketID, func() Packet { return &SetSpawnPositionPacket{} })
	r.Register(AnimatePacketID, func() Packet { return &AnimatePacket{} })
	r.Register(RespawnPacketID, func() Packet { return &RespawnPacket{} })
	r.Register(ContainerOpenPacketID, func() Packet { return &ContainerOpenPacket{} })
	r.Register(ContainerClosePacketID, func() Packet { return &ContainerClosePacket{} })
	r.Register(ContainerSetSlotPacketID, func() Packet { return &ContainerSetSlotPacket{} })
	r.Register(AdventureSettingsID, func() Packet { return &AdventureSettingsPacket{} })
	r.Register(FullChunkDataPacketID, func() Packet { return &FullChunkDataPacket{} })
	r.Register(SetDifficultyPacketID, func() Packet { return &SetDifficultyPacket{} })
	r.Register(SetPlayerGameTypeID, func() Packet { return &SetPlayerGameTypePacket{} })
	r.Register(RequestChunkRadiusID, func() Packet { return &RequestChunkRadiusPacket{} })
	r.Register(ChunkRadiusUpdatedID, func() Packet { return &ChunkRadiusUpdatedPacket{} })
	return r
}

// Register binds id to factory. A second registration for the same id
// replaces the first.
func (r *Registry) Register(id byte, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[id] = factory
}

// Lookup returns a fresh packet for id, or false if id is not registered.
// Unknown ids are expected from peers on other protocol revisions.
func (r *Registry) Lookup(id byte) (Packet, bool) {
	r.mu.RLock()
	factory := r.table[id]
	r.mu.RUnlock()
	if factory == nil {
		return nil, false
	}
	return factory(), true
}

// Decode looks up the packet for the first byte of data and decodes it.
// ok is false when the id is unknown; err reports malformed fields and
// bytes left over after the last field.
func (r *Registry) Decode(data []byte) (pk Packet, ok bool, err error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%w: empty packet", ErrMalformedField)
	}
	pk, ok = r.Lookup(data[0])
	if !ok {
		return nil, false, nil
	}
	consumed, err := Unmarshal(data, pk)
	if err != nil {
		return nil, true, err
	}
	if err := checkTrailing(pk, consumed, len(data)-1); err != nil {
		return nil, true, err
	}
	return pk, true, nil
}
