package session

import (
	"fmt"
	"sort"

	"github.com/PocketSoftMine/SoftMine-PE/protocol"
)

// maxAckBackoff caps the retry delay at this multiple of the base timeout.
const maxAckBackoff = 8

type pendingFrame struct {
	seq      uint32
	data     []byte
	attempts int
	deadline uint64
}

// outbox holds reliable frames that the transport has not confirmed yet.
type outbox struct {
	frames map[uint32]*pendingFrame
}

func newOutbox() *outbox {
	return &outbox{frames: make(map[uint32]*pendingFrame)}
}

func (o *outbox) add(f *pendingFrame) {
	o.frames[f.seq] = f
}

func (o *outbox) remove(seq uint32) bool {
	if _, ok := o.frames[seq]; !ok {
		return false
	}
	delete(o.frames, seq)
	return true
}

// expired returns frames whose deadline has passed, lowest sequence first.
func (o *outbox) expired(now uint64) []*pendingFrame {
	var out []*pendingFrame
	for _, f := range o.frames {
		if f.deadline <= now {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (o *outbox) clear() {
	clear(o.frames)
}

func (o *outbox) Len() int {
	return len(o.frames)
}

// ackDelay returns the wait before the next resend after attempts sends.
func ackDelay(base, attempts int) uint64 {
	d := base
	for i := 1; i < attempts && d < base*maxAckBackoff; i++ {
		d *= 2
	}
	return uint64(min(d, base*maxAckBackoff))
}

// SendReliable writes pk as its own frame ahead of anything sent later and
// returns its sequence number. When the transport can report delivery the
// frame is resent until acknowledged; after MaxAckRetries resends the
// session is closed with ErrAcknowledgementTimeout.
func (s *Session) SendReliable(pk protocol.Packet) uint32 {
	if s.state == StateDisconnected {
		return 0
	}
	if err := s.flush(); err != nil {
		s.Close(err)
		return 0
	}

	data := protocol.Marshal(pk)
	s.seq++
	seq := s.seq

	tracked, ok := s.sink.(TrackedSink)
	if !ok {
		if err := s.sink.Send(data); err != nil {
			s.Close(fmt.Errorf("send frame %d: %w", seq, err))
		}
		return seq
	}

	if err := tracked.SendTracked(data, seq); err != nil {
		s.Close(fmt.Errorf("send frame %d: %w", seq, err))
		return seq
	}
	s.outbox.add(&pendingFrame{
		seq:      seq,
		data:     data,
		attempts: 1,
		deadline: s.tick + ackDelay(s.conf.AckTimeoutTicks, 1),
	})
	return seq
}

// Ack confirms delivery of frame seq. Unknown or repeated sequence numbers
// are ignored.
func (s *Session) Ack(seq uint32) {
	if s.outbox.remove(seq) {
		s.logger.Trace().Uint32("seq", seq).Msg("frame acknowledged")
	}
}

// PendingAcks returns the number of unconfirmed reliable frames.
func (s *Session) PendingAcks() int {
	return s.outbox.Len()
}

func (s *Session) processAcks() {
	if s.state == StateDisconnected || s.outbox.Len() == 0 {
		return
	}
	tracked, ok := s.sink.(TrackedSink)
	if !ok {
		return
	}
	for _, f := range s.outbox.expired(s.tick) {
		if f.attempts-1 >= s.conf.MaxAckRetries {
			s.Close(fmt.Errorf("%w: frame %d", ErrAcknowledgementTimeout, f.seq))
			return
		}
		if err := tracked.SendTracked(f.data, f.seq); err != nil {
			s.Close(fmt.Errorf("resend frame %d: %w", f.seq, err))
			return
		}
		f.attempts++
		f.deadline = s.tick + ackDelay(s.conf.AckTimeoutTicks, f.attempts)
		s.logger.Debug().
			Uint32("seq", f.seq).
			Int("attempt", f.attempts).
			Uint64("next_deadline", f.deadline).
			Msg("resent unacknowledged frame")
	}
}
