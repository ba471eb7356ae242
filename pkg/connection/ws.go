package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/athmos-ops/missionsync/internal/rand"
	"github.com/athmos-ops/missionsync/pkg/codec"
	"github.com/athmos-ops/missionsync/pkg/logger"
)

// rawResult defers decoding of the RPC result until the caller-provided
// destination type is known.
type rawResult = json.RawMessage

// DefaultDialer is the gorilla dialer used by WebSocketConnection, with
// compression enabled.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// WebSocketConnection is a single websocket connection to the remote store.
// Concurrent Sends are safe; responses are matched to requests by id, and
// id-less messages are routed to live notification channels.
type WebSocketConnection struct {
	BaseConnection

	Conn     *gorilla.Conn
	connLock sync.Mutex

	// Timeout bounds how long Send waits for the RPC response after the
	// request was written. Zero disables the internal deadline.
	Timeout time.Duration

	baseURL     string
	marshaler   codec.Marshaler
	unmarshaler codec.Unmarshaler
	logger      logger.Logger

	closeChan  chan int
	closeOnce  sync.Once
	closeError error
}

var _ Connection = (*WebSocketConnection)(nil)

// NewWebSocketConnection creates a connection from the config. Connect must
// be called before use.
func NewWebSocketConnection(cfg *Config) *WebSocketConnection {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop{}
	}
	return &WebSocketConnection{
		BaseConnection: newBaseConnection(),
		baseURL:        cfg.URL.String(),
		marshaler:      cfg.Marshaler,
		unmarshaler:    cfg.Unmarshaler,
		logger:         log,
		Timeout:        cfg.Timeout,
		closeChan:      make(chan int),
	}
}

func (ws *WebSocketConnection) preConnectionChecks() error {
	if ws.baseURL == "" {
		return ErrNoBaseURL
	}
	if ws.marshaler == nil {
		return ErrNoMarshaler
	}
	if ws.unmarshaler == nil {
		return ErrNoUnmarshaler
	}
	return nil
}

func (ws *WebSocketConnection) Connect(ctx context.Context) error {
	if err := ws.preConnectionChecks(); err != nil {
		return err
	}

	conn, res, err := DefaultDialer.DialContext(ctx, ws.baseURL, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	ws.Conn = conn

	go ws.readLoop()
	return nil
}

// Close sends a close frame, then closes the underlying connection. The
// close frame write is bounded by ctx; the local teardown happens regardless.
func (ws *WebSocketConnection) Close(ctx context.Context) error {
	ws.connLock.Lock()
	defer ws.connLock.Unlock()

	ws.closeOnce.Do(func() { close(ws.closeChan) })

	// Notification channels are closed by the read loop when it observes the
	// dead connection; it is the only goroutine sending on them.
	if ws.Conn == nil {
		ws.closeNotificationChannels()
		return nil
	}

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- ws.Conn.WriteMessage(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(CloseMessageCode, ""))
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			ws.logger.Error("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	return ws.Conn.Close()
}

// IsClosed reports whether the connection has been torn down, either by Close
// or by a fatal read error.
func (ws *WebSocketConnection) IsClosed() bool {
	select {
	case <-ws.closeChan:
		return true
	default:
		return false
	}
}

func (ws *WebSocketConnection) Send(ctx context.Context, dest any, method string, params ...any) error {
	if ws.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ws.Timeout)
		defer cancel()
	}

	select {
	case <-ws.closeChan:
		if ws.closeError != nil {
			return ws.closeError
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	id := rand.NewRequestID(RequestIDLength)
	request := &RPCRequest{
		ID:     id,
		Method: method,
		Params: params,
	}

	responseChan, err := ws.createResponseChannel(id)
	if err != nil {
		return err
	}
	defer ws.removeResponseChannel(id)

	if err := ws.write(request); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	case res, open := <-responseChan:
		if !open {
			return ErrClosed
		}
		if res.Error != nil {
			return res.Error
		}
		if dest == nil || res.Result == nil {
			return nil
		}
		if err := ws.unmarshaler.Unmarshal(*res.Result, dest); err != nil {
			return fmt.Errorf("error unmarshaling response: %w", err)
		}
		return nil
	}
}

func (ws *WebSocketConnection) write(v any) error {
	data, err := ws.marshaler.Marshal(v)
	if err != nil {
		return err
	}

	ws.connLock.Lock()
	defer ws.connLock.Unlock()
	return ws.Conn.WriteMessage(gorilla.TextMessage, data)
}

func (ws *WebSocketConnection) readLoop() {
	// Closing the notification channels is how live subscribers learn the
	// connection died; the read loop is the only sender on them.
	defer ws.closeNotificationChannels()

	for {
		select {
		case <-ws.closeChan:
			return
		default:
			_, data, err := ws.Conn.ReadMessage()
			if err != nil {
				if ws.handleError(err) {
					return
				}
				continue
			}
			ws.handleMessage(data)
		}
	}
}

// handleError reports whether the read loop should exit. closeError is only
// written inside closeOnce, so it is set before closeChan closes and never
// races with a Send that observed the closed channel.
func (ws *WebSocketConnection) handleError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		ws.closeOnce.Do(func() {
			ws.closeError = net.ErrClosed
			close(ws.closeChan)
		})
		return true
	}
	if gorilla.IsCloseError(err, CloseMessageCode) || gorilla.IsUnexpectedCloseError(err) {
		ws.closeOnce.Do(func() {
			ws.closeError = io.ErrClosedPipe
			close(ws.closeChan)
		})
		return true
	}

	ws.logger.Error(err.Error())
	return false
}

func (ws *WebSocketConnection) handleMessage(data []byte) {
	var res RPCResponse[rawResult]
	if err := ws.unmarshaler.Unmarshal(data, &res); err != nil {
		ws.logger.Error("unparsable message from remote store", "error", err)
		return
	}

	if res.ID != nil && res.ID != "" {
		responseChan, ok := ws.getResponseChannel(fmt.Sprintf("%v", res.ID))
		if !ok {
			// The requester gave up (timeout) before the response arrived.
			ws.logger.Debug("no response channel", "id", res.ID)
			return
		}
		responseChan <- res
		return
	}

	// Messages without an id are live notifications.
	if res.Result == nil {
		ws.logger.Error("notification without result")
		return
	}

	var notification Notification
	if err := ws.unmarshaler.Unmarshal(*res.Result, &notification); err != nil {
		ws.logger.Error("error unmarshaling notification", "error", err)
		return
	}

	if notification.ID == "" {
		ws.logger.Error("notification without live subscription id")
		return
	}

	ch, ok := ws.getNotificationChannel(notification.ID)
	if !ok {
		ws.logger.Debug("no subscriber for live id", "id", notification.ID)
		return
	}

	select {
	case ch <- notification:
	default:
		ws.logger.Warn("notification dropped, channel full", "id", notification.ID)
	}
}
