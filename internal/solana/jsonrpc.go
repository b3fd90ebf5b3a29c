package solana

import (
	"encoding/json"
	"fmt"
	"time"
)

const jsonrpcVersion = "2.0"

// request is an outgoing JSON-RPC call.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

func newRequest(id uint64, method string, params []interface{}) request {
	return request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

// envelope is anything a JSON-RPC peer sends back. A call response carries
// ID with Result or Error; a subscription push carries Method and Params.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *pushParams     `json:"params,omitempty"`
}

type pushParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

func (e *envelope) isPush() bool {
	return e.Method != "" && e.Params != nil
}

// decode copies the call result into out. Remote errors win over results.
func (e *envelope) decode(out interface{}) error {
	if e.Error != nil {
		return e.Error
	}
	if out == nil || len(e.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Result, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// RPCError is a JSON-RPC error object returned by the remote side.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// backoff yields capped exponential delays. Not safe for concurrent use.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if max < initial {
		max = initial
	}
	return &backoff{initial: initial, max: max, next: initial}
}

// Next returns the current delay and doubles the following one.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max || b.next <= 0 {
		b.next = b.max
	}
	return d
}

func (b *backoff) Reset() {
	b.next = b.initial
}
