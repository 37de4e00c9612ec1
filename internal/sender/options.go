package sender

import (
	"time"

	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/protocol"
)

// Default protocol settings
const (
	DefaultAddress     = 1
	DefaultBlockSize   = 256
	DefaultMaxRetries  = 3
	DefaultAckTimeout  = 1 * time.Second
	DefaultPingTimeout = 500 * time.Millisecond
)

// Config holds the sender configuration.
type Config struct {
	// Header selects the frame magic (EMC or MCE)
	Header protocol.Header

	// Address is the cabinet address, 1..6
	Address int

	// BlockSize is the number of image bytes per data frame, 1..512
	BlockSize int

	// MaxRetries is the number of retries after the first attempt of each exchange
	MaxRetries int

	// AckTimeout bounds the wait for an Init or Data acknowledgement.
	// protocol.NoTimeout waits until the context is done.
	AckTimeout time.Duration

	// PingTimeout bounds the wait for a ping echo
	PingTimeout time.Duration

	// Sink receives protocol events and progress (optional)
	Sink Sink

	// Logger receives the same events as structured log entries (optional).
	// Defaults to the process logger.
	Logger *zap.Logger
}

func defaultConfig() Config {
	return Config{
		Header:      protocol.HeaderEMC,
		Address:     DefaultAddress,
		BlockSize:   DefaultBlockSize,
		MaxRetries:  DefaultMaxRetries,
		AckTimeout:  DefaultAckTimeout,
		PingTimeout: DefaultPingTimeout,
		Sink:        NopSink{},
	}
}

// Option is a functional option for configuring the Sender.
type Option func(*Config)

// WithHeader selects the frame header variant.
//
// Example:
//
//	s := sender.New(t, sender.WithHeader(protocol.HeaderMCE))
func WithHeader(h protocol.Header) Option {
	return func(c *Config) {
		c.Header = h
	}
}

// WithAddress sets the cabinet address. Out-of-range values are rejected when
// a transfer starts.
func WithAddress(addr int) Option {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithBlockSize sets the number of image bytes per data frame.
func WithBlockSize(size int) Option {
	return func(c *Config) {
		c.BlockSize = size
	}
}

// WithMaxRetries sets how many times a failed exchange is retried.
// Each exchange makes at most retries+1 attempts.
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithAckTimeout sets the per-attempt wait for Init and Data acknowledgements.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AckTimeout = d
	}
}

// WithPingTimeout sets the per-attempt wait for a ping echo.
func WithPingTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.PingTimeout = d
	}
}

// WithSink sets the observer for protocol events and progress.
//
// Example:
//
//	s := sender.New(t, sender.WithSink(sender.SinkFuncs{
//	    Log: func(msg string) { fmt.Println(msg) },
//	}))
func WithSink(sink Sink) Option {
	return func(c *Config) {
		if sink != nil {
			c.Sink = sink
		}
	}
}

// WithLogger sets the zap logger events are mirrored to.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
