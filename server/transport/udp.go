package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/server/network"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	udpInboxSize     = 4096
	defaultBlockTime = 5 * time.Minute
)

// StatusFunc reports the player counts shown in server list pings.
type StatusFunc func() (online, max int)

type datagram struct {
	addr netip.AddrPort
	data []byte
}

type udpPeer struct {
	addr   *net.UDPAddr
	closed bool
}

// UDP carries frames as plain datagrams. Each remote address is one
// endpoint; an endpoint that stays silent for the idle timeout is reported
// closed.
type UDP struct {
	conn    *net.UDPConn
	handler network.Handler
	status  StatusFunc
	logger  zerolog.Logger

	serverID uint64
	name     atomic.Pointer[string]

	// blocked is read by the reader goroutine, peers only on the tick goroutine
	blocked *cache.Cache
	peers   *cache.Cache
	expired []string

	inbox   chan datagram
	dropped atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewUDP binds the interface and starts reading.
func NewUDP(conf config.UDPInterface, handler network.Handler, status StatusFunc, logger zerolog.Logger) (*UDP, error) {
	ctx, cancel := context.WithCancel(context.Background())
	lc := net.ListenConfig{Control: socketBuffers(conf.ReadBuffer, conf.WriteBuffer)}
	pc, err := lc.ListenPacket(ctx, "udp", conf.Addr())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen udp %s: %w", conf.Addr(), err)
	}

	u := &UDP{
		conn:     pc.(*net.UDPConn),
		handler:  handler,
		status:   status,
		logger:   logger.With().Str("com", "udp").Str("addr", pc.LocalAddr().String()).Logger(),
		serverID: rand.Uint64(),
		blocked:  cache.New(defaultBlockTime, 0),
		peers:    cache.New(conf.IdleTimeout, 0),
		inbox:    make(chan datagram, udpInboxSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	name := config.DefaultName
	u.name.Store(&name)
	u.peers.OnEvicted(func(endpoint string, v interface{}) {
		if p, ok := v.(*udpPeer); ok && !p.closed {
			u.expired = append(u.expired, endpoint)
		}
	})

	u.wg.Add(1)
	go u.readLoop()

	u.logger.Info().Msg("UDP interface started")
	return u, nil
}

func (u *UDP) Name() string {
	return "udp/" + u.conn.LocalAddr().String()
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

func (u *UDP) readLoop() {
	defer u.wg.Done()
	buf := make([]byte, config.DefaultReadBufferSize)
	for {
		n, addr, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if u.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			u.logger.Debug().Err(err).Msg("read UDP packet failed")
			continue
		}
		if n == 0 {
			continue
		}
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
		if _, blocked := u.blocked.Get(addr.Addr().String()); blocked {
			continue
		}

		if pingTime, ok := parsePing(buf[:n]); ok {
			u.answerPing(addr, pingTime)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case u.inbox <- datagram{addr: addr, data: data}:
		default:
			u.dropped.Add(1)
		}
	}
}

func (u *UDP) answerPing(addr netip.AddrPort, pingTime uint64) {
	online, max := 0, 0
	if u.status != nil {
		online, max = u.status()
	}
	reply := pong(pingTime, u.serverID, announcement(*u.name.Load(), online, max))
	if _, err := u.conn.WriteToUDPAddrPort(reply, addr); err != nil {
		u.logger.Debug().Err(err).Str("remote", addr.String()).Msg("write pong failed")
	}
}

// Process hands queued datagrams to the handler until the queue is empty or
// ctx is done, then reports endpoints that went idle.
func (u *UDP) Process(ctx context.Context) error {
	if u.ctx.Err() != nil {
		return net.ErrClosed
	}
	if n := u.dropped.Swap(0); n > 0 {
		u.logger.Warn().Uint64("dropped", n).Msg("receive queue overflowed")
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d := <-u.inbox:
			endpoint := d.addr.String()
			if p, ok := u.peers.Get(endpoint); ok {
				u.peers.SetDefault(endpoint, p)
			} else {
				u.peers.SetDefault(endpoint, &udpPeer{addr: net.UDPAddrFromAddrPort(d.addr)})
			}
			u.handler.HandleRaw(u, endpoint, d.data)
		default:
			break loop
		}
	}

	u.peers.DeleteExpired()
	expired := u.expired
	u.expired = nil
	for _, endpoint := range expired {
		u.handler.HandleClose(u, endpoint, "timed out")
	}
	return nil
}

func (u *UDP) Send(endpoint string, data []byte) error {
	var addr *net.UDPAddr
	if p, ok := u.peers.Get(endpoint); ok {
		addr = p.(*udpPeer).addr
	} else {
		ap, err := netip.ParseAddrPort(endpoint)
		if err != nil {
			return fmt.Errorf("parse endpoint %q: %w", endpoint, err)
		}
		addr = net.UDPAddrFromAddrPort(ap)
	}
	_, err := u.conn.WriteToUDP(data, addr)
	return err
}

// Close forgets endpoint. Datagrams carry no close notice, so the peer is
// not told.
func (u *UDP) Close(endpoint string, reason string) {
	if p, ok := u.peers.Get(endpoint); ok {
		p.(*udpPeer).closed = true
		u.peers.Delete(endpoint)
	}
	u.logger.Debug().Str("remote", endpoint).Str("reason", reason).Msg("endpoint closed")
}

func (u *UDP) SetName(name string) {
	u.name.Store(&name)
}

func (u *UDP) SendRaw(addr string, port int, data []byte) error {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("parse address %q: %w", addr, err)
	}
	_, err = u.conn.WriteToUDPAddrPort(data, netip.AddrPortFrom(ip, uint16(port)))
	return err
}

// BlockAddress drops datagrams from addr for d, or forever when d < 0.
// A zero d uses the default block time.
func (u *UDP) BlockAddress(addr string, d time.Duration) {
	switch {
	case d < 0:
		d = cache.NoExpiration
	case d == 0:
		d = cache.DefaultExpiration
	}
	u.blocked.Set(addr, struct{}{}, d)
}

// UnblockAddress lifts a block early.
func (u *UDP) UnblockAddress(addr string) {
	u.blocked.Delete(addr)
}

func (u *UDP) Shutdown() error {
	err := u.close()
	u.wg.Wait()
	u.logger.Info().Msg("UDP interface stopped")
	return err
}

func (u *UDP) EmergencyShutdown() {
	_ = u.close()
}

func (u *UDP) close() error {
	var err error
	u.closeOnce.Do(func() {
		u.cancel()
		err = u.conn.Close()
	})
	return err
}
