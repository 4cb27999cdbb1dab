package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/server/tls/certs"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuic(t *testing.T, h *recordHandler, rotation time.Duration) *Quic {
	t.Helper()
	pair, err := certs.GenerateServer("test", nil, time.Hour)
	require.NoError(t, err)
	cert, err := pair.TLSCertificate()
	require.NoError(t, err)

	conf := config.QuicInterface{
		Enabled:           true,
		Listen:            config.Listen{IP: "127.0.0.1", Port: 0},
		Certificate:       cert,
		TicketKeyRotation: rotation,
		TicketKeyOverlap:  2,
	}
	q, err := NewQuic(conf, 1<<20, h, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Shutdown() })
	return q
}

func dialQuic(t *testing.T, q *Quic) *quic.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	conn, err := quic.DialAddr(ctx, q.LocalAddr().String(),
		&tls.Config{InsecureSkipVerify: true, NextProtos: []string{ALPN}},
		&quic.Config{EnableDatagrams: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseWithError(0, "") })
	return conn
}

func processQuicUntil(t *testing.T, q *Quic, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if err := q.Process(t.Context()); err != nil {
			return false
		}
		return cond()
	}, 5*time.Second, 5*time.Millisecond)
}

func TestQuic_DatagramRoundTrip(t *testing.T) {
	h := newRecordHandler()
	q := newTestQuic(t, h, 0)
	conn := dialQuic(t, q)

	require.NoError(t, conn.SendDatagram([]byte{0x92, 7}))
	processQuicUntil(t, q, func() bool { return len(h.raw) == 1 })
	endpoint := h.raw[0].endpoint
	assert.Equal(t, []byte{0x92, 7}, h.raw[0].data)

	require.NoError(t, q.Send(endpoint, []byte("pong")))
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	got, err := conn.ReceiveDatagram(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
}

func TestQuic_LargeFramesUseStreams(t *testing.T) {
	h := newRecordHandler()
	q := newTestQuic(t, h, 0)
	conn := dialQuic(t, q)

	large := make([]byte, 64*1024)
	for i := range large {
		large[i] = byte(i)
	}
	str, err := conn.OpenUniStreamSync(t.Context())
	require.NoError(t, err)
	_, err = str.Write(large)
	require.NoError(t, err)
	require.NoError(t, str.Close())

	processQuicUntil(t, q, func() bool { return len(h.raw) == 1 })
	assert.Equal(t, large, h.raw[0].data)

	require.NoError(t, q.Send(h.raw[0].endpoint, large))
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	in, err := conn.AcceptUniStream(ctx)
	require.NoError(t, err)
	got, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, large, got)
}

// acceptTracked reads one tracked frame and returns its stream, sequence
// number and payload.
func acceptTracked(t *testing.T, conn *quic.Conn) (*quic.Stream, uint32, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	str, err := conn.AcceptStream(ctx)
	require.NoError(t, err)
	got, err := io.ReadAll(str)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 4)
	return str, binary.BigEndian.Uint32(got), got[4:]
}

func TestQuic_TrackedFrameIsAcked(t *testing.T) {
	h := newRecordHandler()
	q := newTestQuic(t, h, time.Hour)
	conn := dialQuic(t, q)

	require.NoError(t, conn.SendDatagram([]byte{1}))
	processQuicUntil(t, q, func() bool { return len(h.raw) == 1 })

	require.NoError(t, q.SendTracked(h.raw[0].endpoint, []byte("reliable"), 9))
	str, seq, payload := acceptTracked(t, conn)
	assert.Equal(t, uint32(9), seq)
	assert.Equal(t, "reliable", string(payload))

	// delivered but not yet acknowledged
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Process(t.Context()))
	assert.Empty(t, h.acks)

	_, err := str.Write(binary.BigEndian.AppendUint32(nil, seq))
	require.NoError(t, err)
	require.NoError(t, str.Close())

	processQuicUntil(t, q, func() bool { return len(h.acks) == 1 })
	assert.Equal(t, []uint32{9}, h.acks)
}

func TestQuic_AckForAnotherFrameIsIgnored(t *testing.T) {
	h := newRecordHandler()
	q := newTestQuic(t, h, 0)
	conn := dialQuic(t, q)

	require.NoError(t, conn.SendDatagram([]byte{1}))
	processQuicUntil(t, q, func() bool { return len(h.raw) == 1 })

	require.NoError(t, q.SendTracked(h.raw[0].endpoint, []byte("first"), 1))
	str, _, _ := acceptTracked(t, conn)
	_, err := str.Write(binary.BigEndian.AppendUint32(nil, 2))
	require.NoError(t, err)
	require.NoError(t, str.Close())

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Process(t.Context()))
	assert.Empty(t, h.acks)
}

func TestQuic_PeerCloseIsReported(t *testing.T) {
	h := newRecordHandler()
	q := newTestQuic(t, h, 0)
	conn := dialQuic(t, q)

	require.NoError(t, conn.SendDatagram([]byte{1}))
	processQuicUntil(t, q, func() bool { return len(h.raw) == 1 })
	endpoint := h.raw[0].endpoint

	require.NoError(t, conn.CloseWithError(0, "bye"))
	processQuicUntil(t, q, func() bool { return h.closes[endpoint] != "" })
	assert.Contains(t, h.closes[endpoint], "bye")

	assert.ErrorIs(t, q.Send(endpoint, []byte{1}), errUnknownEndpoint)
}

func TestQuic_ServerCloseIsNotReported(t *testing.T) {
	h := newRecordHandler()
	q := newTestQuic(t, h, 0)
	conn := dialQuic(t, q)

	require.NoError(t, conn.SendDatagram([]byte{1}))
	processQuicUntil(t, q, func() bool { return len(h.raw) == 1 })
	endpoint := h.raw[0].endpoint

	q.Close(endpoint, "kicked")
	select {
	case <-conn.Context().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client connection still open")
	}
	var appErr *quic.ApplicationError
	require.ErrorAs(t, context.Cause(conn.Context()), &appErr)
	assert.Equal(t, "kicked", appErr.ErrorMessage)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Process(t.Context()))
	assert.Empty(t, h.closes)
}

func TestQuic_UnknownEndpoint(t *testing.T) {
	q := newTestQuic(t, newRecordHandler(), 0)
	assert.ErrorIs(t, q.Send("127.0.0.1:1", []byte{1}), errUnknownEndpoint)
	assert.ErrorIs(t, q.SendTracked("127.0.0.1:1", []byte{1}, 1), errUnknownEndpoint)
	q.Close("127.0.0.1:1", "nothing to close")
}
