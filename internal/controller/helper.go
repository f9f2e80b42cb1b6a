package controller

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/service/sfu"
	"github.com/meetsync/sfu-server/internal/worker"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *controller) generateTimeBasedId() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)

	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// writeJSON is the single data-write path for a connection. Handlers write to
// peers from their own goroutines, so the write is serialized through the
// target session's write mutex.
func (c *controller) writeJSON(conn *websocket.Conn, output *Output) error {
	if session := c.sessionByConn(conn); session != nil {
		session.writeMu.Lock()
		defer session.writeMu.Unlock()
	}

	return conn.WriteJSON(output)
}

func (c *controller) writeToConn(ctx context.Context, conn *websocket.Conn, output *Output) error {
	if conn == nil {
		return nil
	}
	if err := c.writeJSON(conn, output); err != nil {
		return fmt.Errorf("failed to write to conn: %w", err)
	}

	return nil
}

// broadcast fans an output out to every connection, skipping the ones whose
// write fails; a dead peer never aborts the fanout.
func (c *controller) broadcast(ctx context.Context, conns []*websocket.Conn, output *Output) {
	for _, conn := range conns {
		if err := c.writeJSON(conn, output); err != nil {
			c.logger.DebugContext(ctx, "failed to write to conn", "error", err)
		}
	}
}

func (c *controller) writeError(ctx context.Context, conn *websocket.Conn, err error) error {
	return c.writeToConn(ctx, conn, &Output{
		Type: "error",
		Payload: errorPayload{
			Code:    errorCode(err),
			Message: err.Error(),
		},
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, sfu.ErrValidation):
		return "validation_error"
	case errors.Is(err, sfu.ErrMissingIdentity):
		return "missing_identity"
	case errors.Is(err, sfu.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, sfu.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, sfu.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, sfu.ErrTransportNotFound):
		return "transport_not_found"
	case errors.Is(err, sfu.ErrTransportExists):
		return "transport_exists"
	case errors.Is(err, sfu.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, sfu.ErrProducerNotFound):
		return "producer_not_found"
	case errors.Is(err, sfu.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, sfu.ErrGhostForbidden):
		return "ghost_forbidden"
	case errors.Is(err, sfu.ErrRoomFull):
		return "room_full"
	case errors.Is(err, sfu.ErrLinkNotFound):
		return "link_not_found"
	case errors.Is(err, sfu.ErrDraining):
		return "draining"
	case errors.Is(err, sfu.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, worker.ErrNoWorkersAvailable):
		return "no_workers_available"
	default:
		return "internal_error"
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second*5))
	_ = conn.Close()
}

func (c *controller) broadcastFeed(ctx context.Context, feed *sfu.FeedEvent) {
	if feed == nil {
		return
	}
	c.broadcast(ctx, feed.Conns, &Output{
		Type:    "webinar:feedChanged",
		Payload: feed.Snapshot,
	})
}

func (c *controller) broadcastAttendeeCount(ctx context.Context, event *sfu.AttendeeCountEvent) {
	if event == nil {
		return
	}
	c.broadcast(ctx, event.Conns, &Output{
		Type: "webinar:attendeeCountChanged",
		Payload: map[string]any{
			"attendee_count": event.Count,
		},
	})
}

// rejectPendingConns notifies and closes the waiting-room connections of a
// destroyed room.
func (c *controller) rejectPendingConns(ctx context.Context, conns []*websocket.Conn, reason string) {
	for _, conn := range conns {
		if session := c.sessionByConn(conn); session != nil {
			session.clearPending()
		}
		if err := c.writeToConn(ctx, conn, &Output{
			Type:    "joinRejected",
			Payload: map[string]any{"reason": reason},
		}); err != nil {
			c.logger.DebugContext(ctx, "failed to write join rejected", "error", err)
		}
		closeConn(conn, 4003, reason)
	}
}
