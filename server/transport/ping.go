package transport

import (
	"bytes"
	"fmt"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
)

// Offline discovery messages answered by the UDP interface.
const (
	idUnconnectedPing byte = 0x01
	idUnconnectedPong byte = 0x1c
)

var offlineMagic = [16]byte{0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe, 0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78}

// parsePing returns the client timestamp of an unconnected ping.
func parsePing(data []byte) (uint64, bool) {
	if len(data) == 0 || data[0] != idUnconnectedPing {
		return 0, false
	}
	r := protocol.NewReader(data[1:])
	pingTime := r.Long()
	magic := r.Raw(len(offlineMagic))
	if r.Err() != nil || !bytes.Equal(magic, offlineMagic[:]) {
		return 0, false
	}
	return uint64(pingTime), true
}

// announcement is the status line shown in the client's server list.
func announcement(name string, online, max int) string {
	return fmt.Sprintf("MCPE;%s;%d;%s;%d;%d", name, protocol.CurrentProtocol, protocol.MinecraftVersion, online, max)
}

func pong(pingTime, serverID uint64, status string) []byte {
	buf := protocol.GetBuffer()
	defer protocol.PutBuffer(buf)

	w := protocol.NewWriter(buf)
	w.Byte(idUnconnectedPong)
	w.Long(int64(pingTime))
	w.Long(int64(serverID))
	w.Raw(offlineMagic[:])
	w.String(status)
	return bytes.Clone(buf.Bytes())
}
