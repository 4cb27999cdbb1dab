package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	EnvPrefix = "SOFTMINE_"
)

type Listen struct {
	IP   string `yaml:"ip" toml:"ip"`
	Port int    `yaml:"port" toml:"port"`
}

func (l Listen) GetIP() (net.IP, error) {
	ip := net.ParseIP(l.IP)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip address: %s", l.IP)
	}
	return ip, nil
}

// Addr returns the listen address in host:port form.
func (l Listen) Addr() string {
	return net.JoinHostPort(l.IP, strconv.Itoa(l.Port))
}

func (l Listen) validate() error {
	if _, err := l.GetIP(); err != nil {
		return err
	}
	if l.Port < 1 || l.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", l.Port)
	}
	return nil
}

type Quic struct {
	InitialStreamReceiveWindow     uint64        `yaml:"initial_stream_receive_window" toml:"initial_stream_receive_window"`
	MaxStreamReceiveWindow         uint64        `yaml:"max_stream_receive_window" toml:"max_stream_receive_window"`
	InitialConnectionReceiveWindow uint64        `yaml:"initial_connection_receive_window" toml:"initial_connection_receive_window"`
	MaxConnectionReceiveWindow     uint64        `yaml:"max_connection_receive_window" toml:"max_connection_receive_window"`
	MaxIncomingUniStreams          int64         `yaml:"max_incoming_uni_streams" toml:"max_incoming_uni_streams"`
	KeepAlivePeriod                time.Duration `yaml:"keep_alive_period" toml:"keep_alive_period"`
	HandshakeIdleTimeout           time.Duration `yaml:"handshake_idle_timeout" toml:"handshake_idle_timeout"`
	MaxIdleTimeout                 time.Duration `yaml:"max_idle_timeout" toml:"max_idle_timeout"`
}

func (q Quic) GetConfig() *quic.Config {
	if q.MaxIdleTimeout == 0 {
		q.MaxIdleTimeout = DefaultMaxIdleTimeout
	}
	return &quic.Config{
		InitialStreamReceiveWindow:     q.InitialStreamReceiveWindow,
		MaxStreamReceiveWindow:         q.MaxStreamReceiveWindow,
		InitialConnectionReceiveWindow: q.InitialConnectionReceiveWindow,
		MaxConnectionReceiveWindow:     q.MaxConnectionReceiveWindow,
		MaxIncomingUniStreams:          q.MaxIncomingUniStreams,
		KeepAlivePeriod:                q.KeepAlivePeriod,
		HandshakeIdleTimeout:           q.HandshakeIdleTimeout,
		MaxIdleTimeout:                 q.MaxIdleTimeout,
		EnableDatagrams:                true,
	}
}
