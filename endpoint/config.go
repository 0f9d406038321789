package endpoint

import (
	"time"

	"github.com/cloudbridge/coap/dedup"
)

// Config gathers every recognized configuration knob as a plain struct
// plus functional options, matching the way a server's RunProxyServer
// takes a *Config built up field by field rather than a flags struct per
// component.
type Config struct {
	AckTimeout      time.Duration
	AckRandomFactor float64
	MaxRetransmit   int

	ExchangeLifetime     time.Duration
	MarkAndSweepInterval time.Duration
	Deduplicator         dedup.Kind

	TokenLength      int
	UseRandomIDStart bool

	BlockwiseSZX            uint8
	BlockwiseStatusLifetime time.Duration

	// EndpointSchemas is the set of accepted URI schemes; a Send whose
	// request URI scheme isn't in this set fails synchronously with a
	// schema error.
	EndpointSchemas map[string]bool

	Executor Executor
}

// Option mutates a Config being built by NewConfig.
type Option func(*Config)

// DefaultConfig mirrors RFC 7252 §4.8 / RFC 7959 defaults and the vendored
// ClientConn's 247s ExchangeLifetime.
func DefaultConfig() Config {
	return Config{
		AckTimeout:              2 * time.Second,
		AckRandomFactor:         1.5,
		MaxRetransmit:           4,
		ExchangeLifetime:        247 * time.Second,
		MarkAndSweepInterval:    10 * time.Second,
		Deduplicator:            dedup.KindMarkAndSweep,
		TokenLength:             8,
		UseRandomIDStart:        true,
		BlockwiseSZX:            6,
		BlockwiseStatusLifetime: 247 * time.Second,
		EndpointSchemas:         map[string]bool{"coap": true, "coap+udp": true, "coaps": true, "coaps+udp": true},
	}
}

func WithAckTimeout(d time.Duration) Option      { return func(c *Config) { c.AckTimeout = d } }
func WithAckRandomFactor(f float64) Option       { return func(c *Config) { c.AckRandomFactor = f } }
func WithMaxRetransmit(n int) Option             { return func(c *Config) { c.MaxRetransmit = n } }
func WithExchangeLifetime(d time.Duration) Option { return func(c *Config) { c.ExchangeLifetime = d } }
func WithMarkAndSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.MarkAndSweepInterval = d }
}
func WithDeduplicator(k dedup.Kind) Option  { return func(c *Config) { c.Deduplicator = k } }
func WithTokenLength(n int) Option          { return func(c *Config) { c.TokenLength = n } }
func WithUseRandomIDStart(b bool) Option    { return func(c *Config) { c.UseRandomIDStart = b } }
func WithBlockwiseSZX(szx uint8) Option     { return func(c *Config) { c.BlockwiseSZX = szx } }
func WithBlockwiseStatusLifetime(d time.Duration) Option {
	return func(c *Config) { c.BlockwiseStatusLifetime = d }
}
func WithEndpointSchemas(schemes ...string) Option {
	return func(c *Config) {
		c.EndpointSchemas = make(map[string]bool, len(schemes))
		for _, s := range schemes {
			c.EndpointSchemas[s] = true
		}
	}
}
func WithExecutor(e Executor) Option { return func(c *Config) { c.Executor = e } }

// NewConfig applies opts over DefaultConfig.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
