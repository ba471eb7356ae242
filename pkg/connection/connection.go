// Package connection implements the JSON-RPC-over-websocket transport used to
// reach the remote mission store, including live change subscriptions and an
// auto-reconnecting variant.
package connection

import (
	"context"
	"fmt"
	"sync"
)

// Connection is the transport the store client is built on.
type Connection interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Send issues an RPC and unmarshals the result into dest, which must be
	// a pointer (or nil to discard the result).
	Send(ctx context.Context, dest any, method string, params ...any) error

	// LiveNotifications returns the channel change events for the given live
	// subscription id are delivered on.
	LiveNotifications(liveID string) (chan Notification, error)

	// KillNotifications removes and closes the channel for the given live
	// subscription id.
	KillNotifications(liveID string)
}

// BaseConnection holds the bookkeeping shared by connection implementations:
// per-request response channels and per-live-subscription notification
// channels.
type BaseConnection struct {
	responseChannels     map[string]chan RPCResponse[rawResult]
	responseChannelsLock sync.RWMutex

	notificationChannels     map[string]chan Notification
	notificationChannelsLock sync.RWMutex
}

func newBaseConnection() BaseConnection {
	return BaseConnection{
		responseChannels:     make(map[string]chan RPCResponse[rawResult]),
		notificationChannels: make(map[string]chan Notification),
	}
}

func (bc *BaseConnection) createResponseChannel(id string) (chan RPCResponse[rawResult], error) {
	bc.responseChannelsLock.Lock()
	defer bc.responseChannelsLock.Unlock()

	if _, ok := bc.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %v", ErrIDInUse, id)
	}

	ch := make(chan RPCResponse[rawResult], 1)
	bc.responseChannels[id] = ch

	return ch, nil
}

func (bc *BaseConnection) removeResponseChannel(id string) {
	bc.responseChannelsLock.Lock()
	defer bc.responseChannelsLock.Unlock()
	delete(bc.responseChannels, id)
}

func (bc *BaseConnection) getResponseChannel(id string) (chan RPCResponse[rawResult], bool) {
	bc.responseChannelsLock.RLock()
	defer bc.responseChannelsLock.RUnlock()
	ch, ok := bc.responseChannels[id]
	return ch, ok
}

// LiveNotifications registers a channel for the given live subscription id.
func (bc *BaseConnection) LiveNotifications(liveID string) (chan Notification, error) {
	bc.notificationChannelsLock.Lock()
	defer bc.notificationChannelsLock.Unlock()

	if _, ok := bc.notificationChannels[liveID]; ok {
		return nil, fmt.Errorf("%w: %v", ErrIDInUse, liveID)
	}

	ch := make(chan Notification, NotificationBuffer)
	bc.notificationChannels[liveID] = ch

	return ch, nil
}

// KillNotifications removes and closes the channel for the given live id.
func (bc *BaseConnection) KillNotifications(liveID string) {
	bc.notificationChannelsLock.Lock()
	defer bc.notificationChannelsLock.Unlock()

	if ch, ok := bc.notificationChannels[liveID]; ok {
		close(ch)
		delete(bc.notificationChannels, liveID)
	}
}

func (bc *BaseConnection) getNotificationChannel(liveID string) (chan Notification, bool) {
	bc.notificationChannelsLock.RLock()
	defer bc.notificationChannelsLock.RUnlock()
	ch, ok := bc.notificationChannels[liveID]
	return ch, ok
}

func (bc *BaseConnection) closeNotificationChannels() {
	bc.notificationChannelsLock.Lock()
	defer bc.notificationChannelsLock.Unlock()

	for id, ch := range bc.notificationChannels {
		close(ch)
		delete(bc.notificationChannels, id)
	}
}
