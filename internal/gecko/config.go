package gecko

import (
	"time"

	"github.com/danmuck/geckoctl/internal/protocol"
	"github.com/danmuck/geckoctl/internal/transport"
)

// DefaultPort is where the console agent listens.
const DefaultPort = 7331

// Config defines the agent endpoint and session timing.
type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// SettleDelay is observed after the socket opens, before the session
	// reports Connected.
	SettleDelay time.Duration
	// StatusDelay is observed before every status request.
	StatusDelay time.Duration
	ByteOrder   protocol.Codec
	Backoff     BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		ConnectTimeout: transport.DefaultConnectTimeout,
		ReadTimeout:    transport.DefaultReadTimeout,
		WriteTimeout:   transport.DefaultWriteTimeout,
		SettleDelay:    150 * time.Millisecond,
		StatusDelay:    100 * time.Millisecond,
		ByteOrder:      protocol.LittleEndian,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero endpoint and timeout fields. Delays are kept as
// given so tests can zero them.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = transport.DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = transport.DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = transport.DefaultWriteTimeout
	}
	return c
}

func (c Config) transportConfig() transport.Config {
	return transport.Config{
		Host:           c.Host,
		Port:           c.Port,
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
	}
}
