// Package fakestore provides an in-process fake of the remote mission store
// for tests. It speaks the same JSON-RPC dialect over websocket as the real
// store: signin/authenticate, create, select, merge, live and kill, with live
// subscriptions receiving the full owned record set on every change. Failure
// injection covers delayed responses, one-shot method errors and forced
// connection drops.
package fakestore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/athmos-ops/missionsync/pkg/connection"
)

const (
	codeAuthFailed    = -32000
	codeInvalidParams = -32602
	codeInjected      = -32999
)

var signingSecret = []byte("fakestore-secret")

// Server is the fake store. Serve the handler returned by Handler with
// httptest and dial it with a ws:// URL.
type Server struct {
	upgrader gorilla.Upgrader

	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	users       map[string]string
	appliedKeys map[string]bool
	subs        map[string]*subscription
	clients     map[*client]struct{}

	responseDelay time.Duration
	failNext      map[string]int
}

type subscription struct {
	client     *client
	collection string
	owner      string
}

type client struct {
	conn    *gorilla.Conn
	writeMu sync.Mutex
	uid     string
}

// New creates an empty fake store with one known user, pilot/aviate.
func New() *Server {
	return &Server{
		collections: make(map[string]map[string]map[string]any),
		users:       map[string]string{"pilot": "aviate"},
		appliedKeys: make(map[string]bool),
		subs:        make(map[string]*subscription),
		clients:     make(map[*client]struct{}),
		failNext:    make(map[string]int),
	}
}

// AddUser registers store credentials.
func (s *Server) AddUser(user, pass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = pass
}

// SetResponseDelay delays every response by d.
func (s *Server) SetResponseDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseDelay = d
}

// FailNext makes the next n calls of the given method fail with an injected
// error.
func (s *Server) FailNext(method string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method] = n
}

// DropConnections forcefully closes every connected client, simulating a
// network partition. Live subscriptions die with their connections.
func (s *Server) DropConnections() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.subs = make(map[string]*subscription)
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// Records returns a copy of the stored records of a collection, for
// assertions.
func (s *Server) Records(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]any, 0, len(s.collections[collection]))
	for _, rec := range s.collections[collection] {
		cp := make(map[string]any, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Handler returns the websocket endpoint of the fake store.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := &client{conn: conn}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()

		go s.serve(c)
	})
}

func (s *Server) serve(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		for id, sub := range s.subs {
			if sub.client == c {
				delete(s.subs, id)
			}
		}
		s.mu.Unlock()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req connection.RPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		result, rpcErr := s.handle(c, &req)

		s.mu.Lock()
		delay := s.responseDelay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}

		s.respond(c, req.ID, result, rpcErr)
	}
}

func (s *Server) handle(c *client, req *connection.RPCRequest) (any, *connection.RPCError) {
	s.mu.Lock()
	if n := s.failNext[req.Method]; n > 0 {
		s.failNext[req.Method] = n - 1
		s.mu.Unlock()
		return nil, &connection.RPCError{Code: codeInjected, Message: "injected failure"}
	}
	s.mu.Unlock()

	switch req.Method {
	case connection.MethodSignIn:
		return s.signIn(c, req.Params)
	case connection.MethodAuthenticate:
		return s.authenticate(c, req.Params)
	case connection.MethodInvalidate:
		c.uid = ""
		return nil, nil
	case connection.MethodSelect:
		return s.selectOwned(req.Params)
	case connection.MethodCreate:
		return s.create(req.Params)
	case connection.MethodMerge:
		return s.merge(req.Params)
	case connection.MethodLive:
		return s.live(c, req.Params)
	case connection.MethodKill:
		return s.kill(req.Params)
	default:
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "unknown method: " + req.Method}
	}
}

func (s *Server) signIn(c *client, params []any) (any, *connection.RPCError) {
	if len(params) < 1 {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "signin requires credentials"}
	}
	creds, ok := params[0].(map[string]any)
	if !ok {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "malformed credentials"}
	}

	user, _ := creds["user"].(string)
	pass, _ := creds["pass"].(string)

	s.mu.Lock()
	want, known := s.users[user]
	s.mu.Unlock()

	if !known || want != pass {
		return nil, &connection.RPCError{Code: codeAuthFailed, Message: "there was a problem with authentication"}
	}

	uid := "user:" + user
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uid,
		"iat": time.Now().Unix(),
	}).SignedString(signingSecret)
	if err != nil {
		return nil, &connection.RPCError{Code: codeAuthFailed, Message: "token signing failed"}
	}

	c.uid = uid
	return token, nil
}

func (s *Server) authenticate(c *client, params []any) (any, *connection.RPCError) {
	if len(params) < 1 {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "authenticate requires a token"}
	}
	raw, _ := params[0].(string)

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return signingSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, &connection.RPCError{Code: codeAuthFailed, Message: "invalid token"}
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, &connection.RPCError{Code: codeAuthFailed, Message: "token has no subject"}
	}

	c.uid = sub
	return nil, nil
}

func (s *Server) selectOwned(params []any) (any, *connection.RPCError) {
	collection, owner, rpcErr := collectionOwner(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedSetLocked(collection, owner), nil
}

func (s *Server) create(params []any) (any, *connection.RPCError) {
	if len(params) < 2 {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "create requires collection and data"}
	}
	collection, _ := params[0].(string)
	data, ok := params[1].(map[string]any)
	if !ok {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "create data must be an object"}
	}

	rec := make(map[string]any, len(data)+2)
	for k, v := range data {
		rec[k] = v
	}
	id := fmt.Sprintf("%s:%s", collection, uuid.NewString()[:8])
	rec["id"] = id
	rec["createdAt"] = time.Now().UnixMilli()

	s.mu.Lock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}
	s.collections[collection][id] = rec
	owner, _ := rec["owner"].(string)
	s.notifyLocked(collection, owner)
	s.mu.Unlock()

	return rec, nil
}

func (s *Server) merge(params []any) (any, *connection.RPCError) {
	if len(params) < 2 {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "merge requires record id and patch"}
	}
	recordID, _ := params[0].(string)
	patch, ok := params[1].(map[string]any)
	if !ok {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "merge patch must be an object"}
	}
	var key string
	if len(params) > 2 {
		key, _ = params[2].(string)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if s.appliedKeys[key] {
			// Retried patch already applied once; ack without reapplying.
			return nil, nil
		}
		s.appliedKeys[key] = true
	}

	for collection, records := range s.collections {
		rec, ok := records[recordID]
		if !ok {
			continue
		}
		for k, v := range patch {
			if v == nil {
				delete(rec, k)
				continue
			}
			rec[k] = v
		}
		owner, _ := rec["owner"].(string)
		s.notifyLocked(collection, owner)
		return rec, nil
	}

	return nil, &connection.RPCError{Code: codeInvalidParams, Message: "no such record: " + recordID}
}

func (s *Server) live(c *client, params []any) (any, *connection.RPCError) {
	collection, owner, rpcErr := collectionOwner(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	liveID := uuid.NewString()

	s.mu.Lock()
	s.subs[liveID] = &subscription{client: c, collection: collection, owner: owner}
	s.mu.Unlock()

	return liveID, nil
}

func (s *Server) kill(params []any) (any, *connection.RPCError) {
	if len(params) < 1 {
		return nil, &connection.RPCError{Code: codeInvalidParams, Message: "kill requires a live id"}
	}
	liveID, _ := params[0].(string)

	s.mu.Lock()
	delete(s.subs, liveID)
	s.mu.Unlock()

	return nil, nil
}

func collectionOwner(params []any) (string, string, *connection.RPCError) {
	if len(params) < 2 {
		return "", "", &connection.RPCError{Code: codeInvalidParams, Message: "collection and owner required"}
	}
	collection, _ := params[0].(string)
	owner, _ := params[1].(string)
	return collection, owner, nil
}

// ownedSetLocked gathers the records of the collection owned by owner.
// Callers hold s.mu.
func (s *Server) ownedSetLocked(collection, owner string) []map[string]any {
	set := make([]map[string]any, 0)
	for _, rec := range s.collections[collection] {
		if o, _ := rec["owner"].(string); o == owner {
			set = append(set, rec)
		}
	}
	return set
}

// notifyLocked pushes the full owned set to every matching live
// subscription. Callers hold s.mu.
func (s *Server) notifyLocked(collection, owner string) {
	for liveID, sub := range s.subs {
		if sub.collection != collection || sub.owner != owner {
			continue
		}

		set := s.ownedSetLocked(collection, owner)
		payload, err := json.Marshal(set)
		if err != nil {
			continue
		}

		notification := map[string]any{
			"id":     liveID,
			"action": string(connection.UpdateAction),
			"result": json.RawMessage(payload),
		}
		// Live notifications are RPC messages without an id. Written
		// synchronously so successive changes deliver their snapshots in
		// order.
		s.write(sub.client, map[string]any{"result": notification})
	}
}

func (s *Server) respond(c *client, id, result any, rpcErr *connection.RPCError) {
	msg := map[string]any{"id": id}
	if rpcErr != nil {
		msg["error"] = rpcErr
	} else if result != nil {
		msg["result"] = result
	}
	s.write(c, msg)
}

func (s *Server) write(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(gorilla.TextMessage, data)
}
