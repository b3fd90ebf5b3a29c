package solana

import (
	"context"
	"encoding/json"
)

// Caller performs JSON-RPC 2.0 calls against a collaborator endpoint
// (discovery scanner, swap router).
type Caller interface {
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

// Notification is one pushed subscription message.
type Notification struct {
	Method string
	Result json.RawMessage
}

// Subscriber opens JSON-RPC subscriptions over a persistent connection.
type Subscriber interface {
	// Subscribe sends method(params) and streams the notifications.
	// The channel closes when the client closes.
	Subscribe(ctx context.Context, method string, params []interface{}) (<-chan Notification, error)

	// Close closes the connection.
	Close() error
}
