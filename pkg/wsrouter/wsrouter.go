package wsrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandlerFunc handles a single inbound message of a concrete payload type.
type HandlerFunc[T any] func(ctx context.Context, conn *websocket.Conn, payload T) error

type rawHandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

// Middleware wraps every handler at the raw payload level.
type Middleware func(next rawHandlerFunc) rawHandlerFunc

type WSRouter struct {
	routes      map[string]rawHandlerFunc
	middlewares []Middleware
	onError     func(ctx context.Context, conn *websocket.Conn, messageType string, err error)
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]rawHandlerFunc)}
}

// Use appends a middleware; middlewares run in registration order at dispatch time.
func (r *WSRouter) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

// OnError installs a callback invoked when a handler returns an error. Without
// it handler errors terminate ServeConn.
func (r *WSRouter) OnError(f func(ctx context.Context, conn *websocket.Conn, messageType string, err error)) {
	r.onError = f
}

// Handle registers a typed handler for a message type. The payload is
// unmarshalled into T before the handler runs.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
		var input T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &input); err != nil {
				return fmt.Errorf("invalid payload for %q: %w", messageType, err)
			}
		}

		return handler(ctx, conn, input)
	}
}

// ServeConn reads messages from the connection until it fails or the context
// is cancelled, dispatching each to the registered handler.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, ok := r.routes[msg.Type]
		if !ok {
			handler = func(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) error {
				return fmt.Errorf("unknown message type %q", msg.Type)
			}
		}

		for i := len(r.middlewares) - 1; i >= 0; i-- {
			handler = r.middlewares[i](handler)
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(msgCtx, conn, msg.Payload); err != nil {
			if r.onError == nil {
				return err
			}
			r.onError(msgCtx, conn, msg.Type, err)
		}
	}
}
