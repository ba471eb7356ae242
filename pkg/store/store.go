// Package store is the typed client for the remote mission store. It wraps
// the RPC connection with the small set of verbs the engine needs: signin,
// create, select, merge and live subscriptions.
package store

import (
	"context"
	"errors"

	"github.com/athmos-ops/missionsync/pkg/connection"
	"github.com/athmos-ops/missionsync/pkg/logger"
)

var (
	ErrNoResult = errors.New("remote store returned no result")
)

// Client issues RPCs against a single connection. All methods are safe for
// concurrent use, inherited from the connection.
type Client struct {
	conn   connection.Connection
	logger logger.Logger
}

// New creates a Client on top of an already-constructed connection.
func New(conn connection.Connection, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop{}
	}
	return &Client{conn: conn, logger: log}
}

// Connection exposes the underlying connection, e.g. to register reconnect
// hooks.
func (c *Client) Connection() connection.Connection {
	return c.conn
}

// Close tears down the underlying connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// SignIn authenticates with user credentials and returns the issued session
// token.
func (c *Client) SignIn(ctx context.Context, user, pass string) (string, error) {
	var token string
	err := c.conn.Send(ctx, &token, connection.MethodSignIn, map[string]any{
		"user": user,
		"pass": pass,
	})
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoResult
	}
	return token, nil
}

// Authenticate resumes a session from a previously issued token.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	return c.conn.Send(ctx, nil, connection.MethodAuthenticate, token)
}

// Invalidate drops the server-side session.
func (c *Client) Invalidate(ctx context.Context) error {
	return c.conn.Send(ctx, nil, connection.MethodInvalidate)
}

// Create inserts data into the collection and unmarshals the stored record,
// including its server-assigned id and creation timestamp, into dest.
func (c *Client) Create(ctx context.Context, collection string, data, dest any) error {
	return c.conn.Send(ctx, dest, connection.MethodCreate, collection, data)
}

// SelectOwned fetches all records of the collection owned by owner into dest.
func (c *Client) SelectOwned(ctx context.Context, collection, owner string, dest any) error {
	return c.conn.Send(ctx, dest, connection.MethodSelect, collection, owner)
}

// Merge applies a partial patch to a single record. The idempotency key lets
// the store deduplicate a retried patch.
func (c *Client) Merge(ctx context.Context, recordID string, patch map[string]any, idempotencyKey string) error {
	return c.conn.Send(ctx, nil, connection.MethodMerge, recordID, patch, idempotencyKey)
}

// Live opens a live subscription over the owner's records in the collection.
// It returns the subscription id and the channel change notifications arrive
// on. The channel is closed when the subscription dies with the connection.
func (c *Client) Live(ctx context.Context, collection, owner string) (string, chan connection.Notification, error) {
	var liveID string
	if err := c.conn.Send(ctx, &liveID, connection.MethodLive, collection, owner); err != nil {
		return "", nil, err
	}
	if liveID == "" {
		return "", nil, ErrNoResult
	}

	ch, err := c.conn.LiveNotifications(liveID)
	if err != nil {
		return "", nil, err
	}

	return liveID, ch, nil
}

// Kill closes a live subscription and its notification channel. The local
// channel is torn down even when the RPC fails; the failure is logged because
// callers shutting a session down rarely have anywhere to surface it.
func (c *Client) Kill(ctx context.Context, liveID string) error {
	err := c.conn.Send(ctx, nil, connection.MethodKill, liveID)
	if err != nil {
		c.logger.Warn("kill rpc failed, subscription may linger server-side", "live_id", liveID, "error", err)
	}
	c.conn.KillNotifications(liveID)
	return err
}
