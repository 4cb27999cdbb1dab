package stek

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Rotator periodically replaces the session ticket encryption keys of the
// QUIC interface. The first key encrypts new tickets; the older ones are
// kept for overlap-1 rotations so that clients can still resume.
type Rotator struct {
	keys     atomic.Pointer[[][32]byte]
	interval time.Duration
	overlap  uint8
	logger   zerolog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a Rotator holding overlap freshly generated keys.
func New(interval time.Duration, overlap uint8, logger zerolog.Logger) (*Rotator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("rotation interval must be positive, got %v", interval)
	}
	if overlap < 1 {
		return nil, fmt.Errorf("overlap must be at least 1, got %d", overlap)
	}

	r := &Rotator{
		interval: interval,
		overlap:  overlap,
		logger:   logger.With().Str("com", "stek").Logger(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	initial := make([][32]byte, overlap)
	for i := range initial {
		key, err := generateKey()
		if err != nil {
			return nil, fmt.Errorf("generate initial key %d: %w", i, err)
		}
		initial[i] = key
	}
	r.keys.Store(&initial)
	return r, nil
}

func generateKey() ([32]byte, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("read random: %w", err)
	}
	return key, nil
}

// Keys returns the current key set, newest first.
func (r *Rotator) Keys() [][32]byte {
	return *r.keys.Load()
}

func (r *Rotator) rotate() error {
	key, err := generateKey()
	if err != nil {
		return err
	}
	current := *r.keys.Load()
	next := make([][32]byte, min(len(current)+1, int(r.overlap)))
	next[0] = key
	copy(next[1:], current)
	r.keys.Store(&next)

	r.logger.Debug().Int("keys", len(next)).Msg("rotated session ticket keys")
	return nil
}

// Apply makes conf use the rotating keys for every handshake.
func (r *Rotator) Apply(conf *tls.Config) {
	conf.SetSessionTicketKeys(r.Keys())
	conf.GetConfigForClient = func(*tls.ClientHelloInfo) (*tls.Config, error) {
		c := conf.Clone()
		c.GetConfigForClient = nil
		c.SetSessionTicketKeys(r.Keys())
		return c, nil
	}
}

// Start rotates keys in the background until ctx is done or Stop is called.
func (r *Rotator) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.rotate(); err != nil {
					r.logger.Error().Err(err).Msg("rotate session ticket keys failed")
				}
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop ends rotation and waits for the background goroutine. It is safe to
// call more than once.
func (r *Rotator) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.started.Load() {
		<-r.done
	}
}
