package protocol

// CurrentProtocol is the only client protocol revision accepted at login.
const CurrentProtocol = 38

// MinecraftVersion is reported to clients in the server announcement.
const MinecraftVersion = "v0.13.0 alpha"

// Packet type identifiers. Every encoded packet starts with one of these bytes.
const (
	LoginPacketID            byte = 0x8f
	PlayStatusPacketID       byte = 0x90
	DisconnectPacketID       byte = 0x91
	BatchPacketID            byte = 0x92
	TextPacketID             byte = 0x93
	SetTimePacketID          byte = 0x94
	StartGamePacketID        byte = 0x95
	AddPlayerPacketID        byte = 0x96
	RemovePlayerPacketID     byte = 0x97
	AddEntityPacketID        byte = 0x98
	RemoveEntityPacketID     byte = 0x99
	MoveEntityPacketID       byte = 0x9c
	MovePlayerPacketID       byte = 0x9d
	UpdateBlockPacketID      byte = 0x9f
	SetEntityDataPacketID    byte = 0xad
	SetEntityLinkPacketID    byte = 0xaf
	SetHealthPacketID        byte = 0xb0
	SetSpawnPositionPacketID byte = 0xb1
	AnimatePacketID          byte = 0xb2
	RespawnPacketID          byte = 0xb3
	ContainerOpenPacketID    byte = 0xb5
	ContainerClosePacketID   byte = 0xb6
	ContainerSetSlotPacketID byte = 0xb7
	AdventureSettingsID      byte = 0xbc
	FullChunkDataPacketID    byte = 0xbf
	SetDifficultyPacketID    byte = 0xc0
	SetPlayerGameTypeID      byte = 0xc2
	RequestChunkRadiusID     byte = 0xc8
	ChunkRadiusUpdatedID     byte = 0xc9
)

// PlayStatus values.
const (
	StatusLoginSuccess      int32 = 0
	StatusLoginFailedClient int32 = 1
	StatusLoginFailedServer int32 = 2
	StatusPlayerSpawn       int32 = 3
)

// Text packet types.
const (
	TextRaw byte = iota
	TextChat
	TextTranslation
	TextPopup
	TextTip
	TextSystem
)

// MovePlayer modes.
const (
	MoveModeNormal byte = 0
	MoveModeReset  byte = 1
	MoveModeRotate byte = 2
)

// Game modes.
const (
	Survival  int32 = 0
	Creative  int32 = 1
	Adventure int32 = 2
	Spectator int32 = 3
)
