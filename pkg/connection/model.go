package connection

import "encoding/json"

// RPCError represents a JSON-RPC error returned by the remote store.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (r *RPCError) Error() string {
	return r.Message
}

// RPCRequest represents an outgoing JSON-RPC request.
type RPCRequest struct {
	ID     any    `json:"id"`
	Method string `json:"method,omitempty"`
	Params []any  `json:"params,omitempty"`
}

// RPCResponse represents an incoming JSON-RPC response.
type RPCResponse[T any] struct {
	ID     any       `json:"id"`
	Error  *RPCError `json:"error,omitempty"`
	Result *T        `json:"result,omitempty"`
}

// Action describes what happened to a record covered by a live subscription.
type Action string

const (
	CreateAction Action = "CREATE"
	UpdateAction Action = "UPDATE"
	DeleteAction Action = "DELETE"
)

// Notification is a change event pushed by the remote store for a live
// subscription. ID is the live subscription id the event belongs to.
type Notification struct {
	ID     string          `json:"id,omitempty"`
	Action Action          `json:"action"`
	Result json.RawMessage `json:"result"`
}

// RPC method names understood by the remote store.
const (
	MethodUse          = "use"
	MethodSignIn       = "signin"
	MethodAuthenticate = "authenticate"
	MethodInvalidate   = "invalidate"
	MethodLet          = "let"
	MethodUnset        = "unset"
	MethodLive         = "live"
	MethodKill         = "kill"
	MethodQuery        = "query"
	MethodSelect       = "select"
	MethodCreate       = "create"
	MethodMerge        = "merge"
	MethodDelete       = "delete"
)
