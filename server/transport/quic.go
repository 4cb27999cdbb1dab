package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/server/network"
	"github.com/PocketSoftMine/SoftMine-PE/server/tls/stek"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"
)

// ALPN is the application protocol negotiated by QUIC clients.
const ALPN = "softmine"

const (
	quicEventQueue = 4096
	// frames above this size go on a uni stream instead of a datagram
	maxDatagramFrame = 1100

	// a tracked frame not acknowledged within this time is left to the
	// session's resend logic
	trackedAckWait = 30 * time.Second

	closeCodeNormal     quic.ApplicationErrorCode = 0
	closeCodeFrameLimit quic.StreamErrorCode      = 1
	closeCodeBadAck     quic.StreamErrorCode      = 2
)

type quicEventKind uint8

const (
	quicOpened quicEventKind = iota
	quicFrame
	quicAck
	quicClosed
)

type quicEvent struct {
	kind   quicEventKind
	peer   *quicPeer
	data   []byte
	seq    uint32
	reason string
}

type quicPeer struct {
	conn     *quic.Conn
	endpoint string
	// set when the server closed the connection itself
	closed atomic.Bool
}

// Quic carries frames over QUIC connections. Small frames travel as
// datagrams, large frames each on their own uni stream.
//
// A tracked frame gets its own bidirectional stream carrying the 4 byte
// big-endian sequence number followed by the frame. The peer acknowledges
// by writing the same sequence number back; only then is HandleAck called.
type Quic struct {
	udpConn  *net.UDPConn
	tr       *quic.Transport
	ln       *quic.Listener
	handler  network.Handler
	rotator  *stek.Rotator
	maxFrame int64
	logger   zerolog.Logger

	// owned by the tick goroutine
	peers map[string]*quicPeer

	events chan quicEvent

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewQuic starts listening with the certificate loaded into conf. Frames
// received on streams are limited to maxFrame bytes.
func NewQuic(conf config.QuicInterface, maxFrame int64, handler network.Handler, logger zerolog.Logger) (*Quic, error) {
	logger = logger.With().Str("com", "quic").Logger()

	ip, err := conf.GetIP()
	if err != nil {
		return nil, err
	}
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: conf.Port})
	if err != nil {
		return nil, fmt.Errorf("listen udp failed: %w", err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{conf.Certificate},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Quic{
		udpConn:  udpConn,
		tr:       &quic.Transport{Conn: udpConn},
		handler:  handler,
		maxFrame: maxFrame,
		logger:   logger.With().Str("addr", udpConn.LocalAddr().String()).Logger(),
		peers:    make(map[string]*quicPeer),
		events:   make(chan quicEvent, quicEventQueue),
		ctx:      ctx,
		cancel:   cancel,
	}

	if conf.TicketKeyRotation > 0 {
		q.rotator, err = stek.New(conf.TicketKeyRotation, conf.TicketKeyOverlap, logger)
		if err != nil {
			cancel()
			_ = udpConn.Close()
			return nil, fmt.Errorf("session ticket keys: %w", err)
		}
		q.rotator.Apply(tlsConf)
		q.rotator.Start(ctx)
	}

	q.ln, err = q.tr.Listen(tlsConf, conf.GetConfig())
	if err != nil {
		_ = q.close()
		return nil, fmt.Errorf("listen quic failed: %w", err)
	}

	q.wg.Add(1)
	go q.acceptLoop()

	q.logger.Info().Msg("QUIC interface started")
	return q, nil
}

func (q *Quic) Name() string {
	return "quic/" + q.udpConn.LocalAddr().String()
}

// LocalAddr returns the bound address.
func (q *Quic) LocalAddr() *net.UDPAddr {
	return q.udpConn.LocalAddr().(*net.UDPAddr)
}

func (q *Quic) emit(ev quicEvent) bool {
	select {
	case q.events <- ev:
		return true
	case <-q.ctx.Done():
		return false
	}
}

func (q *Quic) acceptLoop() {
	defer q.wg.Done()
	for {
		conn, err := q.ln.Accept(q.ctx)
		if err != nil {
			if q.ctx.Err() == nil {
				q.logger.Error().Err(err).Msg("accept connection failed")
			}
			return
		}

		p := &quicPeer{conn: conn, endpoint: conn.RemoteAddr().String()}
		if !q.emit(quicEvent{kind: quicOpened, peer: p}) {
			_ = conn.CloseWithError(closeCodeNormal, "server shutting down")
			return
		}
		q.logger.Debug().Str("remote", p.endpoint).Msg("connection accepted")

		q.wg.Add(3)
		go q.receiveDatagrams(p)
		go q.acceptStreams(p)
		go q.watch(p)
	}
}

func (q *Quic) receiveDatagrams(p *quicPeer) {
	defer q.wg.Done()
	for {
		data, err := p.conn.ReceiveDatagram(q.ctx)
		if err != nil {
			return
		}
		if !q.emit(quicEvent{kind: quicFrame, peer: p, data: data}) {
			return
		}
	}
}

func (q *Quic) acceptStreams(p *quicPeer) {
	defer q.wg.Done()
	for {
		str, err := p.conn.AcceptUniStream(q.ctx)
		if err != nil {
			return
		}
		q.wg.Add(1)
		go q.readStream(p, str)
	}
}

// readStream reads one frame, which spans the whole stream.
func (q *Quic) readStream(p *quicPeer, str *quic.ReceiveStream) {
	defer q.wg.Done()
	data, err := io.ReadAll(io.LimitReader(str, q.maxFrame+1))
	if err != nil {
		q.logger.Debug().Err(err).Str("remote", p.endpoint).Msg("read stream failed")
		return
	}
	if int64(len(data)) > q.maxFrame {
		str.CancelRead(closeCodeFrameLimit)
		q.logger.Warn().Str("remote", p.endpoint).Int64("limit", q.maxFrame).Msg("stream frame too large")
		return
	}
	if len(data) > 0 {
		q.emit(quicEvent{kind: quicFrame, peer: p, data: data})
	}
}

func (q *Quic) watch(p *quicPeer) {
	defer q.wg.Done()
	select {
	case <-p.conn.Context().Done():
	case <-q.ctx.Done():
		return
	}
	if p.closed.Load() {
		return
	}
	reason := "connection closed"
	if cause := context.Cause(p.conn.Context()); cause != nil {
		reason = cause.Error()
	}
	q.emit(quicEvent{kind: quicClosed, peer: p, reason: reason})
}

// Process applies connection events queued by the background readers.
func (q *Quic) Process(ctx context.Context) error {
	if q.ctx.Err() != nil {
		return net.ErrClosed
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-q.events:
			q.apply(ev)
		default:
			return nil
		}
	}
}

func (q *Quic) apply(ev quicEvent) {
	p := ev.peer
	if ev.kind == quicOpened {
		q.peers[p.endpoint] = p
		return
	}
	if current, ok := q.peers[p.endpoint]; !ok || current != p {
		return
	}
	switch ev.kind {
	case quicFrame:
		q.handler.HandleRaw(q, p.endpoint, ev.data)
	case quicAck:
		q.handler.HandleAck(q, p.endpoint, ev.seq)
	case quicClosed:
		delete(q.peers, p.endpoint)
		q.handler.HandleClose(q, p.endpoint, ev.reason)
	}
}

var errUnknownEndpoint = errors.New("unknown endpoint")

func (q *Quic) peer(endpoint string) (*quicPeer, error) {
	p, ok := q.peers[endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownEndpoint, endpoint)
	}
	return p, nil
}

func (q *Quic) Send(endpoint string, data []byte) error {
	p, err := q.peer(endpoint)
	if err != nil {
		return err
	}
	if len(data) <= maxDatagramFrame {
		return p.conn.SendDatagram(data)
	}
	q.writeStream(p, data)
	return nil
}

// SendTracked writes data on its own bidirectional stream and reports seq
// through HandleAck once the peer echoes it back.
func (q *Quic) SendTracked(endpoint string, data []byte, seq uint32) error {
	p, err := q.peer(endpoint)
	if err != nil {
		return err
	}
	q.wg.Add(1)
	go q.writeTracked(p, data, seq)
	return nil
}

func (q *Quic) writeStream(p *quicPeer, data []byte) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		str, err := p.conn.OpenUniStreamSync(q.ctx)
		if err != nil {
			q.logger.Debug().Err(err).Str("remote", p.endpoint).Msg("open stream failed")
			return
		}
		if _, err = str.Write(data); err == nil {
			err = str.Close()
		}
		if err != nil {
			str.CancelWrite(0)
			q.logger.Debug().Err(err).Str("remote", p.endpoint).Msg("write stream failed")
		}
	}()
}

func (q *Quic) writeTracked(p *quicPeer, data []byte, seq uint32) {
	defer q.wg.Done()
	logger := q.logger.With().Str("remote", p.endpoint).Uint32("seq", seq).Logger()

	str, err := p.conn.OpenStreamSync(q.ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("open tracked stream failed")
		return
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], seq)
	if _, err = str.Write(append(header[:], data...)); err == nil {
		err = str.Close()
	}
	if err != nil {
		str.CancelWrite(0)
		str.CancelRead(0)
		logger.Debug().Err(err).Msg("write tracked stream failed")
		return
	}

	_ = str.SetReadDeadline(time.Now().Add(trackedAckWait))
	var ack [4]byte
	if _, err := io.ReadFull(str, ack[:]); err != nil {
		str.CancelRead(0)
		logger.Debug().Err(err).Msg("no acknowledgement")
		return
	}
	if got := binary.BigEndian.Uint32(ack[:]); got != seq {
		str.CancelRead(closeCodeBadAck)
		logger.Debug().Uint32("got", got).Msg("acknowledgement for another frame")
		return
	}
	q.emit(quicEvent{kind: quicAck, peer: p, seq: seq})
}

// Close closes the connection of endpoint with reason as the error message.
func (q *Quic) Close(endpoint string, reason string) {
	p, ok := q.peers[endpoint]
	if !ok {
		return
	}
	delete(q.peers, endpoint)
	p.closed.Store(true)
	_ = p.conn.CloseWithError(closeCodeNormal, reason)
}

// SetName is a no-op: QUIC clients are not discovered through pings.
func (q *Quic) SetName(string) {}

func (q *Quic) Shutdown() error {
	for endpoint := range q.peers {
		q.Close(endpoint, "server shutting down")
	}
	err := q.close()
	q.wg.Wait()
	q.logger.Info().Msg("QUIC interface stopped")
	return err
}

func (q *Quic) EmergencyShutdown() {
	_ = q.close()
}

func (q *Quic) close() error {
	var errs []error
	q.closeOnce.Do(func() {
		q.cancel()
		if q.rotator != nil {
			q.rotator.Stop()
		}
		if q.ln != nil {
			errs = append(errs, q.ln.Close())
		}
		errs = append(errs, q.tr.Close(), q.udpConn.Close())
	})
	return errors.Join(errs...)
}
