package network

// Sink writes frames to one endpoint of an interface.
type Sink interface {
	Send(data []byte) error
}

type endpointSink struct {
	m        *Manager
	iface    SourceInterface
	endpoint string
}

func (e *endpointSink) Send(data []byte) error {
	if err := e.iface.Send(e.endpoint, data); err != nil {
		return err
	}
	e.m.AddStatistics(uint64(len(data)), 0)
	return nil
}

type trackedSink struct {
	endpointSink
	tracked TrackedInterface
}

func (e *trackedSink) SendTracked(data []byte, seq uint32) error {
	if err := e.tracked.SendTracked(e.endpoint, data, seq); err != nil {
		return err
	}
	e.m.AddStatistics(uint64(len(data)), 0)
	return nil
}

// Endpoint returns a sink for endpoint on iface whose traffic is counted by
// the manager in wire bytes. When iface can track delivery the sink also has
// SendTracked(data, seq).
func (m *Manager) Endpoint(iface SourceInterface, endpoint string) Sink {
	base := endpointSink{m: m, iface: iface, endpoint: endpoint}
	if t, ok := iface.(TrackedInterface); ok {
		return &trackedSink{endpointSink: base, tracked: t}
	}
	return &base
}
