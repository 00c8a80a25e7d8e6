package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures the HTTP/WebSocket server.
type Config struct {
	// Address is the listen address.
	// Default: ":8787".
	Address string

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// MaxMessageSize caps inbound frames in bytes.
	// Default: 4 MiB.
	MaxMessageSize int64

	// WriteTimeout is the deadline for writing one frame.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings each connection.
	// Must be less than PongWait.
	// Default: 30 seconds.
	PingInterval time.Duration

	// PongWait is how long a connection may stay silent before it is
	// treated as failed.
	// Default: 60 seconds.
	PongWait time.Duration

	// SendQueue is the number of outbound frames buffered per connection.
	// Default: 256.
	SendQueue int

	// AcceptRate is the sustained connection admission rate per second.
	// 0 disables admission limiting.
	// Default: 50.
	AcceptRate float64

	// AcceptBurst is the admission burst size.
	// Default: 100.
	AcceptBurst int

	// AllowedOrigins lists origins allowed to open WebSockets. Empty means
	// any origin; "same" means same-origin only.
	AllowedOrigins []string

	// MetricsPath serves Prometheus metrics when non-empty.
	// Default: "/metrics".
	MetricsPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:           ":8787",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MaxMessageSize:    4 << 20,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		PongWait:          60 * time.Second,
		SendQueue:         256,
		AcceptRate:        50,
		AcceptBurst:       100,
		MetricsPath:       "/metrics",
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongWait == 0 {
		c.PongWait = d.PongWait
	}
	if c.PingInterval == 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	if c.AcceptBurst <= 0 {
		c.AcceptBurst = d.AcceptBurst
	}
	return c
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// originChecker builds the upgrader's CheckOrigin from an allow-list.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	sameOrigin := false
	for _, o := range allowed {
		if o == "same" {
			sameOrigin = true
			continue
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		if sameOrigin && SameOriginCheck(r) {
			return true
		}
		origin := strings.ToLower(r.Header.Get("Origin"))
		_, ok := set[origin]
		return ok
	}
}
