package transport

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/protocol"
	"github.com/PocketSoftMine/SoftMine-PE/server/network"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	endpoint string
	data     []byte
}

type recordHandler struct {
	raw    []frame
	acks   []uint32
	closes map[string]string
}

func newRecordHandler() *recordHandler {
	return &recordHandler{closes: make(map[string]string)}
}

func (h *recordHandler) HandleRaw(_ network.SourceInterface, endpoint string, data []byte) {
	h.raw = append(h.raw, frame{endpoint: endpoint, data: data})
}

func (h *recordHandler) HandleAck(_ network.SourceInterface, _ string, seq uint32) {
	h.acks = append(h.acks, seq)
}

func (h *recordHandler) HandleClose(_ network.SourceInterface, endpoint, reason string) {
	h.closes[endpoint] = reason
}

func newTestUDP(t *testing.T, h network.Handler, idle time.Duration) *UDP {
	t.Helper()
	conf := config.UDPInterface{
		Enabled:     true,
		Listen:      config.Listen{IP: "127.0.0.1", Port: 0},
		IdleTimeout: idle,
	}
	u, err := NewUDP(conf, h, func() (int, int) { return 3, 20 }, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Shutdown() })
	return u
}

func dialUDP(t *testing.T, u *UDP) *net.UDPConn {
	t.Helper()
	c, err := net.DialUDP("udp", nil, u.LocalAddr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// processUntil drives Process until cond holds or a second passes.
func processUntil(t *testing.T, u *UDP, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if err := u.Process(t.Context()); err != nil {
			return false
		}
		return cond()
	}, time.Second, 5*time.Millisecond)
}

func TestUDP_DeliversDatagrams(t *testing.T) {
	h := newRecordHandler()
	u := newTestUDP(t, h, time.Minute)
	c := dialUDP(t, u)

	_, err := c.Write([]byte{0x92, 1, 2, 3})
	require.NoError(t, err)
	processUntil(t, u, func() bool { return len(h.raw) == 1 })

	assert.Equal(t, c.LocalAddr().String(), h.raw[0].endpoint)
	assert.Equal(t, []byte{0x92, 1, 2, 3}, h.raw[0].data)

	require.NoError(t, u.Send(h.raw[0].endpoint, []byte("reply")))
	buf := make([]byte, 64)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(buf[:n]))
}

func TestUDP_AnswersPing(t *testing.T) {
	u := newTestUDP(t, newRecordHandler(), time.Minute)
	u.SetName("Test Server")
	c := dialUDP(t, u)

	ping := protocol.GetBuffer()
	defer protocol.PutBuffer(ping)
	w := protocol.NewWriter(ping)
	w.Byte(idUnconnectedPing)
	w.Long(12345)
	w.Raw(offlineMagic[:])
	_, err := c.Write(ping.Bytes())
	require.NoError(t, err)

	buf := make([]byte, 1500)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := c.Read(buf)
	require.NoError(t, err)

	r := protocol.NewReader(buf[:n])
	assert.Equal(t, idUnconnectedPong, r.Byte())
	assert.Equal(t, int64(12345), r.Long())
	assert.Equal(t, int64(u.serverID), r.Long())
	assert.True(t, bytes.Equal(offlineMagic[:], r.Raw(len(offlineMagic))))
	status := r.String()
	require.NoError(t, r.Err())
	assert.Equal(t, "MCPE;Test Server;38;v0.13.0 alpha;3;20", status)
}

func TestParsePing_RejectsOtherTraffic(t *testing.T) {
	_, ok := parsePing(nil)
	assert.False(t, ok)
	_, ok = parsePing([]byte{idUnconnectedPing, 0, 0})
	assert.False(t, ok)

	bad := append([]byte{idUnconnectedPing, 0, 0, 0, 0, 0, 0, 0, 1}, make([]byte, 16)...)
	_, ok = parsePing(bad)
	assert.False(t, ok, "wrong magic")
}

func TestUDP_BlockedAddressIsDropped(t *testing.T) {
	h := newRecordHandler()
	u := newTestUDP(t, h, time.Minute)
	u.BlockAddress("127.0.0.1", -1)
	c := dialUDP(t, u)

	_, err := c.Write([]byte{1, 2})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, u.Process(t.Context()))
	assert.Empty(t, h.raw)

	u.UnblockAddress("127.0.0.1")
	_, err = c.Write([]byte{3})
	require.NoError(t, err)
	processUntil(t, u, func() bool { return len(h.raw) == 1 })
	assert.Equal(t, []byte{3}, h.raw[0].data)
}

func TestUDP_IdleEndpointIsClosed(t *testing.T) {
	h := newRecordHandler()
	u := newTestUDP(t, h, 30*time.Millisecond)
	c := dialUDP(t, u)

	_, err := c.Write([]byte{1})
	require.NoError(t, err)
	processUntil(t, u, func() bool { return len(h.raw) == 1 })

	endpoint := c.LocalAddr().String()
	processUntil(t, u, func() bool { return h.closes[endpoint] != "" })
	assert.Equal(t, "timed out", h.closes[endpoint])
}

func TestUDP_ClosedEndpointIsNotReported(t *testing.T) {
	h := newRecordHandler()
	u := newTestUDP(t, h, 20*time.Millisecond)
	c := dialUDP(t, u)

	_, err := c.Write([]byte{1})
	require.NoError(t, err)
	processUntil(t, u, func() bool { return len(h.raw) == 1 })

	u.Close(c.LocalAddr().String(), "kicked")
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, u.Process(t.Context()))
	assert.Empty(t, h.closes)
}

func TestUDP_SendRaw(t *testing.T) {
	u := newTestUDP(t, newRecordHandler(), time.Minute)
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	addr := peer.LocalAddr().(*net.UDPAddr)
	require.NoError(t, u.SendRaw("127.0.0.1", addr.Port, []byte("query")))
	require.Error(t, u.SendRaw("not-an-ip", addr.Port, nil))

	buf := make([]byte, 16)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "query", string(buf[:n]))
}

func TestUDP_ProcessAfterShutdown(t *testing.T) {
	u := newTestUDP(t, newRecordHandler(), time.Minute)
	require.NoError(t, u.Shutdown())
	assert.ErrorIs(t, u.Process(t.Context()), net.ErrClosed)
	u.EmergencyShutdown()
}

func TestAnnouncement(t *testing.T) {
	got := announcement("A;B", 0, 5)
	assert.True(t, strings.HasPrefix(got, "MCPE;A;B;38;"))
	assert.True(t, strings.HasSuffix(got, ";0;5"))
}
