package connection

import (
	"net/url"
	"os"
	"time"

	"github.com/athmos-ops/missionsync/pkg/codec"
	"github.com/athmos-ops/missionsync/pkg/logger"
)

// Config carries everything a connection needs. It is injected at
// construction; there is no package-level default endpoint.
type Config struct {
	// URL is the websocket endpoint of the remote store,
	// e.g. "ws://localhost:8000/rpc".
	URL url.URL

	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler
	Logger      logger.Logger

	// Timeout bounds how long Send waits for the RPC response.
	// Zero means DefaultTimeout; use a context deadline for finer control.
	Timeout time.Duration
}

// NewConfig creates a Config for the given endpoint with the JSON codec and
// a zerolog-backed logger writing to stderr.
func NewConfig(u *url.URL) *Config {
	c := codec.NewJSON()
	return &Config{
		URL:         *u,
		Marshaler:   c,
		Unmarshaler: c,
		Logger:      logger.New(os.Stderr),
		Timeout:     DefaultTimeout,
	}
}
