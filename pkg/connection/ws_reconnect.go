package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/athmos-ops/missionsync/pkg/logger"
)

type ReconnectState int

const (
	ReconnectStateUnknown ReconnectState = iota
	ReconnectStateConnecting
	ReconnectStateConnected
	ReconnectStateDisconnecting
	ReconnectStateDisconnected
)

func (s ReconnectState) String() string {
	switch s {
	case ReconnectStateConnecting:
		return "Connecting"
	case ReconnectStateConnected:
		return "Connected"
	case ReconnectStateDisconnecting:
		return "Disconnecting"
	case ReconnectStateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

func (s ReconnectState) transitionTo(newState ReconnectState) (ReconnectState, error) {
	switch s {
	case ReconnectStateConnecting:
		switch newState {
		case ReconnectStateConnected, ReconnectStateDisconnected:
			return newState, nil
		}
	case ReconnectStateConnected:
		switch newState {
		case ReconnectStateDisconnecting, ReconnectStateDisconnected:
			return newState, nil
		}
	case ReconnectStateDisconnecting:
		if newState == ReconnectStateDisconnected {
			return newState, nil
		}
	case ReconnectStateDisconnected:
		switch newState {
		case ReconnectStateConnecting, ReconnectStateDisconnected:
			return newState, nil
		}
	}

	return ReconnectStateUnknown, fmt.Errorf("invalid state transition from %v to %v", s, newState)
}

// ReconnectingWebSocketConnection redials the remote store when the
// underlying connection is lost after a successful Connect. The initial
// connection failure is returned to the caller, who decides how to handle it.
//
// Live subscriptions do not survive a redial: their notification channels on
// the old connection are gone, so subscribers register an OnReconnect hook to
// re-issue session state and live queries against the fresh connection.
type ReconnectingWebSocketConnection struct {
	// NewFunc creates the underlying connection, both initially and on
	// every reconnection.
	NewFunc func(ctx context.Context) (*WebSocketConnection, error)

	// Retryer paces the reconnection attempts. Defaults to exponential
	// backoff with jitter.
	Retryer Retryer

	// CheckInterval is how often connection liveness is checked.
	CheckInterval time.Duration

	logger logger.Logger

	// conn is swapped by the reconnection loop while callers keep issuing
	// RPCs, so every access goes through the atomic pointer.
	conn atomic.Pointer[WebSocketConnection]

	connCloseCh       chan int
	reconnLoopCloseCh chan int

	state ReconnectState
	mu    sync.Mutex

	hooks   []func(ctx context.Context) error
	hooksMu sync.Mutex
}

var _ Connection = (*ReconnectingWebSocketConnection)(nil)

// NewReconnecting wraps connections produced by newFunc with automatic
// redialing every checkInterval.
func NewReconnecting(
	newFunc func(ctx context.Context) (*WebSocketConnection, error),
	checkInterval time.Duration,
	log logger.Logger,
) *ReconnectingWebSocketConnection {
	if log == nil {
		log = logger.Nop{}
	}
	return &ReconnectingWebSocketConnection{
		NewFunc:       newFunc,
		CheckInterval: checkInterval,
		Retryer:       NewExponentialBackoffRetryer(),
		state:         ReconnectStateDisconnected,
		logger:        log,
	}
}

// OnReconnect registers fn to run after every successful redial, in
// registration order. Used to replay authentication and re-open live queries.
func (arws *ReconnectingWebSocketConnection) OnReconnect(fn func(ctx context.Context) error) {
	arws.hooksMu.Lock()
	defer arws.hooksMu.Unlock()
	arws.hooks = append(arws.hooks, fn)
}

func (arws *ReconnectingWebSocketConnection) transitionTo(newState ReconnectState) error {
	arws.mu.Lock()
	defer arws.mu.Unlock()

	newState, err := arws.state.transitionTo(newState)
	if err != nil {
		return err
	}

	arws.state = newState
	arws.logger.Debug("reconnecting connection state transitioned", "new_state", newState.String())

	return nil
}

func (arws *ReconnectingWebSocketConnection) mustTransitionTo(newState ReconnectState) {
	if err := arws.transitionTo(newState); err != nil {
		panic(fmt.Sprintf("BUG: %v", err))
	}
}

// Connect establishes the connection and starts the reconnection loop. The
// loop only starts after the initial connection succeeds.
func (arws *ReconnectingWebSocketConnection) Connect(ctx context.Context) error {
	if err := arws.transitionTo(ReconnectStateConnecting); err != nil {
		return err
	}

	ws, err := arws.NewFunc(ctx)
	if err != nil {
		arws.mustTransitionTo(ReconnectStateDisconnected)
		return err
	}
	if err := ws.Connect(ctx); err != nil {
		arws.mustTransitionTo(ReconnectStateDisconnected)
		return err
	}

	arws.conn.Store(ws)
	arws.connCloseCh = make(chan int, 1)
	arws.reconnLoopCloseCh = make(chan int, 1)

	go arws.reconnectionLoop()

	arws.mustTransitionTo(ReconnectStateConnected)

	return nil
}

// Close stops the reconnection loop, then closes the underlying connection.
func (arws *ReconnectingWebSocketConnection) Close(ctx context.Context) error {
	if err := arws.transitionTo(ReconnectStateDisconnecting); err != nil {
		return fmt.Errorf("connection is already closing or closed: %w", err)
	}

	defer arws.mustTransitionTo(ReconnectStateDisconnected)

	close(arws.connCloseCh)
	<-arws.reconnLoopCloseCh

	return arws.conn.Load().Close(ctx)
}

// Send issues an RPC over whichever underlying connection is active.
func (arws *ReconnectingWebSocketConnection) Send(ctx context.Context, dest any, method string, params ...any) error {
	return arws.conn.Load().Send(ctx, dest, method, params...)
}

// LiveNotifications registers a notification channel on the active
// connection. The channel dies with that connection; re-register from an
// OnReconnect hook.
func (arws *ReconnectingWebSocketConnection) LiveNotifications(liveID string) (chan Notification, error) {
	return arws.conn.Load().LiveNotifications(liveID)
}

// KillNotifications removes and closes the channel for the given live id on
// the active connection.
func (arws *ReconnectingWebSocketConnection) KillNotifications(liveID string) {
	arws.conn.Load().KillNotifications(liveID)
}

// IsClosed reports whether the active underlying connection is torn down.
func (arws *ReconnectingWebSocketConnection) IsClosed() bool {
	return arws.conn.Load().IsClosed()
}

func (arws *ReconnectingWebSocketConnection) reconnectionLoop() {
	checkInterval := 5 * time.Second
	if arws.CheckInterval > 0 {
		checkInterval = arws.CheckInterval
	}

	defer close(arws.reconnLoopCloseCh)

	attempt := 0

	for {
		select {
		case <-arws.connCloseCh:
			return
		case <-time.After(checkInterval):
		}

		if !arws.IsClosed() {
			continue
		}

		if err := arws.reconnect(context.Background()); err != nil {
			arws.logger.Error("failed to reconnect", "error", err)

			delay, retry := arws.Retryer.NextDelay(attempt, err)
			if !retry {
				arws.logger.Error("giving up on reconnection")
				return
			}
			attempt++

			select {
			case <-arws.connCloseCh:
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		arws.Retryer.Reset()
		arws.logger.Info("reconnected to remote store")
	}
}

func (arws *ReconnectingWebSocketConnection) reconnect(ctx context.Context) error {
	ws, err := arws.NewFunc(ctx)
	if err != nil {
		return err
	}
	if err := ws.Connect(ctx); err != nil {
		return err
	}

	arws.conn.Store(ws)

	arws.hooksMu.Lock()
	hooks := make([]func(context.Context) error, len(arws.hooks))
	copy(hooks, arws.hooks)
	arws.hooksMu.Unlock()

	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			arws.logger.Error("reconnect hook failed", "error", err)
		}
	}

	return nil
}
