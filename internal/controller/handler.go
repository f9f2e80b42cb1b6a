package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/service/sfu"
	"github.com/meetsync/sfu-server/pkg/ctxlogger"
	"github.com/meetsync/sfu-server/pkg/rest"
)

func (c *controller) serveWS(w http.ResponseWriter, r *http.Request) {
	cred, err := c.sfuService.ParseCredential(r.URL.Query().Get("token"))
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to parse credential", "error", err)
		rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "invalid token"})
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	session := &connSession{
		connId:        c.generateTimeBasedId(),
		connSessionId: r.URL.Query().Get("session-id"),
		credential:    cred,
	}

	c.sessionsMu.Lock()
	c.sessions[conn] = session
	c.sessionsMu.Unlock()

	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("conn_id", session.connId))
	ctx = context.WithValue(ctx, sessionCtxKey, session)

	defer c.disconnect(ctx, conn)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "conn closed", "error", err)
	}
}

// disconnect tears down whatever the connection was bound to when its read
// loop ended: a pending waiting-room entry or an active client. Leaving the
// last active client destroys the room.
func (c *controller) disconnect(ctx context.Context, conn *websocket.Conn) {
	c.sessionsMu.Lock()
	session := c.sessions[conn]
	delete(c.sessions, conn)
	c.sessionsMu.Unlock()

	conn.Close()
	if session == nil {
		return
	}
	st := session.state()

	if st.pendingUserKey != "" {
		c.sfuService.DisconnectPending(ctx, st.pendingChannelId, st.pendingUserKey)
		return
	}
	if st.clientId == "" {
		return
	}

	disconnectResp, err := c.sfuService.DisconnectClient(ctx, &sfu.DisconnectClientParams{
		ChannelId: st.channelId,
		ClientId:  st.clientId,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to disconnect client", "error", err)
		return
	}

	if disconnectResp.Left != nil {
		c.broadcast(ctx, disconnectResp.Conns, &Output{
			Type: "userLeft",
			Payload: map[string]any{
				"user": disconnectResp.Left,
			},
		})
	}
	c.broadcastFeed(ctx, disconnectResp.Feed)
	c.broadcastAttendeeCount(ctx, disconnectResp.AttendeeCount)
	c.rejectPendingConns(ctx, disconnectResp.Cleanup.RejectedPendingConns, "room closed")
}

// handlePendingTimeout fires on the admission timer goroutine; it behaves like
// an admin reject towards the waiting joiner.
func (c *controller) handlePendingTimeout(conn *websocket.Conn, channelId string) {
	if session := c.sessionByConn(conn); session != nil {
		session.clearPending()
	}

	ctx := context.Background()
	if err := c.writeToConn(ctx, conn, &Output{
		Type:    "joinRejected",
		Payload: map[string]any{"reason": "timeout"},
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to write join rejected", "error", err)
	}
	closeConn(conn, 4003, "admission timeout")
}
