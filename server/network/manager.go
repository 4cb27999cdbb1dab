package network

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Errors
var (
	ErrInterfaceFailure = errors.New("network interface failure")
	ErrBudgetExceeded   = errors.New("processing budget exceeded")
)

// overrunFactor scales the budget into the failure threshold. Process sees a
// context that expires at the budget; an interface that honors it returns a
// little after, one still running at twice the budget is blocked.
const overrunFactor = 2

// Manager owns the registered interfaces, isolates their failures and
// accounts the bytes they move.
type Manager struct {
	interfaces []SourceInterface
	handler    Handler
	name       string
	budget     time.Duration
	logger     zerolog.Logger

	upload   atomic.Uint64
	download atomic.Uint64
}

// NewManager creates a manager forwarding received data to handler. Each
// interface gets budget per Process call.
func NewManager(handler Handler, budget time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		handler: handler,
		budget:  budget,
		logger:  logger.With().Str("com", "network").Logger(),
	}
}

// RegisterInterface adds iface and tells it the current server name.
func (m *Manager) RegisterInterface(iface SourceInterface) {
	if slices.Contains(m.interfaces, iface) {
		return
	}
	m.interfaces = append(m.interfaces, iface)
	if m.name != "" {
		iface.SetName(m.name)
	}
	m.logger.Info().
		Str("interface", iface.Name()).
		Bool("advanced", isAdvanced(iface)).
		Msg("interface registered")
}

// UnregisterInterface removes iface without shutting it down.
func (m *Manager) UnregisterInterface(iface SourceInterface) {
	i := slices.Index(m.interfaces, iface)
	if i < 0 {
		return
	}
	m.interfaces = slices.Delete(m.interfaces, i, i+1)
	m.logger.Info().Str("interface", iface.Name()).Msg("interface unregistered")
}

// Interfaces returns the registered interfaces.
func (m *Manager) Interfaces() []SourceInterface {
	return slices.Clone(m.interfaces)
}

// ProcessInterfaces runs Process on every interface. An interface that
// returns an error, panics or overruns its budget twice over is shut down
// and unregistered; the others are still processed. The returned error
// joins every failure of this call.
func (m *Manager) ProcessInterfaces(ctx context.Context) error {
	var failures []error
	for _, iface := range m.Interfaces() {
		if ctx.Err() != nil {
			break
		}
		if err := m.process(ctx, iface); err != nil {
			if ctx.Err() != nil {
				break
			}
			err = fmt.Errorf("%w: %s: %w", ErrInterfaceFailure, iface.Name(), err)
			m.logger.Error().Err(err).Str("interface", iface.Name()).Msg("shutting down failed interface")
			iface.EmergencyShutdown()
			m.UnregisterInterface(iface)
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func (m *Manager) process(parent context.Context, iface SourceInterface) (err error) {
	ctx := parent
	if m.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, m.budget)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Debug().Bytes("stack", debug.Stack()).Msg("interface panic")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	if err := iface.Process(ctx); err != nil {
		return err
	}
	if elapsed := time.Since(start); m.budget > 0 && elapsed > overrunFactor*m.budget {
		return fmt.Errorf("%w: took %v of %v", ErrBudgetExceeded, elapsed, m.budget)
	}
	return nil
}

// Shutdown shuts down and unregisters every interface.
func (m *Manager) Shutdown() {
	for _, iface := range m.Interfaces() {
		if err := iface.Shutdown(); err != nil {
			m.logger.Warn().Err(err).Str("interface", iface.Name()).Msg("interface shutdown failed")
		}
		m.UnregisterInterface(iface)
	}
}

// SetName changes the advertised server name on every interface.
func (m *Manager) SetName(name string) {
	m.name = name
	m.UpdateName()
}

func (m *Manager) Name() string {
	return m.name
}

// UpdateName pushes the current name to every interface again.
func (m *Manager) UpdateName() {
	for _, iface := range m.interfaces {
		iface.SetName(m.name)
	}
}

// SendPacket sends a raw datagram through every advanced interface.
func (m *Manager) SendPacket(addr string, port int, data []byte) {
	for _, iface := range m.interfaces {
		adv, ok := iface.(AdvancedInterface)
		if !ok {
			continue
		}
		if err := adv.SendRaw(addr, port, data); err != nil {
			m.logger.Debug().Err(err).Str("interface", iface.Name()).Str("addr", addr).Msg("raw send failed")
			continue
		}
		m.AddStatistics(uint64(len(data)), 0)
	}
}

// BlockAddress blocks addr on every advanced interface for d, or forever
// when d < 0.
func (m *Manager) BlockAddress(addr string, d time.Duration) {
	for _, iface := range m.interfaces {
		if adv, ok := iface.(AdvancedInterface); ok {
			adv.BlockAddress(addr, d)
		}
	}
	m.logger.Info().Str("addr", addr).Dur("duration", d).Msg("address blocked")
}

// AddStatistics accounts transferred bytes.
func (m *Manager) AddStatistics(upload, download uint64) {
	m.upload.Add(upload)
	m.download.Add(download)
}

func (m *Manager) Upload() uint64   { return m.upload.Load() }
func (m *Manager) Download() uint64 { return m.download.Load() }

// ResetStatistics zeroes the byte counters.
func (m *Manager) ResetStatistics() {
	m.upload.Store(0)
	m.download.Store(0)
}

// HandleRaw accounts and forwards received frames. Interfaces are built
// with the manager as their Handler.
func (m *Manager) HandleRaw(iface SourceInterface, endpoint string, data []byte) {
	m.AddStatistics(0, uint64(len(data)))
	m.handler.HandleRaw(iface, endpoint, data)
}

func (m *Manager) HandleAck(iface SourceInterface, endpoint string, seq uint32) {
	m.handler.HandleAck(iface, endpoint, seq)
}

func (m *Manager) HandleClose(iface SourceInterface, endpoint string, reason string) {
	m.handler.HandleClose(iface, endpoint, reason)
}

func isAdvanced(iface SourceInterface) bool {
	_, ok := iface.(AdvancedInterface)
	return ok
}
