package connection

import (
	"errors"
	"time"
)

const (
	// RequestIDLength is the size of the id attached to each RPC request.
	RequestIDLength = 16
	// CloseMessageCode identifies a normal websocket close.
	CloseMessageCode = 1000
	// DefaultTimeout bounds how long Send waits for the RPC response.
	DefaultTimeout = 30 * time.Second
	// NotificationBuffer is the capacity of live notification channels.
	// Buffered so a slow consumer does not stall the read loop.
	NotificationBuffer = 100
)

var (
	ErrIDInUse       = errors.New("id already in use")
	ErrTimeout       = errors.New("timeout")
	ErrNoBaseURL     = errors.New("base url not set")
	ErrNoMarshaler   = errors.New("marshaler is not set")
	ErrNoUnmarshaler = errors.New("unmarshaler is not set")
	ErrClosed        = errors.New("connection closed")
)
