// Package config loads runtime configuration for mission-sync clients.
//
// Sources and precedence: built-in defaults, then an optional .env file,
// then process environment variables. Command-line flags, when the consumer
// has any, are applied by the consumer on top.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything a client needs to reach the remote store and to
// build handoff links. It is injected where needed; there is no package
// global.
type Config struct {
	// StoreURL is the websocket endpoint of the remote mission store.
	StoreURL string

	// AppOrigin and SignPath form the base of remote-signing deep links.
	AppOrigin string
	SignPath  string

	// QRService renders signing links as scannable codes.
	QRService string
	QRSize    int

	// RPCTimeout bounds a single RPC round trip.
	RPCTimeout time.Duration

	// ReconnectInterval is how often a lost connection is probed. Zero
	// disables automatic reconnection.
	ReconnectInterval time.Duration
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.StoreURL = "ws://localhost:8000/rpc"
	c.AppOrigin = "https://app.athmos-ops.example"
	c.SignPath = "sign"
	c.QRService = "https://api.qrserver.com/v1/create-qr-code/"
	c.QRSize = 200
	c.RPCTimeout = 30 * time.Second
	c.ReconnectInterval = 5 * time.Second
}

// Load constructs a Config from defaults, an optional .env file in the
// working directory, and environment variables, in that order.
func Load() *Config {
	c := &Config{}
	c.LoadDefaults()

	// Missing .env is fine; the environment may be set by other means.
	_ = godotenv.Load()

	c.parseEnv()
	return c
}

func (c *Config) parseEnv() {
	if v := os.Getenv("MISSIONSYNC_STORE_URL"); v != "" {
		c.StoreURL = v
	}
	if v := os.Getenv("MISSIONSYNC_APP_ORIGIN"); v != "" {
		c.AppOrigin = v
	}
	if v := os.Getenv("MISSIONSYNC_SIGN_PATH"); v != "" {
		c.SignPath = v
	}
	if v := os.Getenv("MISSIONSYNC_QR_SERVICE"); v != "" {
		c.QRService = v
	}
	if v := os.Getenv("MISSIONSYNC_QR_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			c.QRSize = size
		}
	}
	if v := os.Getenv("MISSIONSYNC_RPC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RPCTimeout = d
		}
	}
	if v := os.Getenv("MISSIONSYNC_RECONNECT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ReconnectInterval = d
		}
	}
}
