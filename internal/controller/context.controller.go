package controller

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/service/sfu"
)

type contextKey int

const sessionCtxKey contextKey = iota

// connSession is the mutable binding of one websocket connection. It starts
// unbound, becomes pending or active through a join, and may be rebound from
// another connection's handler (admit, reject, timeout), hence the mutex.
type connSession struct {
	mu sync.Mutex

	// writeMu serializes writes to the session's connection; gorilla/websocket
	// allows only one concurrent writer and broadcasts originate from other
	// connections' handler goroutines.
	writeMu sync.Mutex

	connId        string
	connSessionId string
	credential    *sfu.Credential

	channelId string
	clientId  string

	pendingChannelId string
	pendingUserKey   string
}

// sessionState is a point-in-time copy safe to use without the lock.
type sessionState struct {
	connId        string
	connSessionId string
	credential    *sfu.Credential
	channelId     string
	clientId      string

	pendingChannelId string
	pendingUserKey   string
}

func (s *connSession) state() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sessionState{
		connId:           s.connId,
		connSessionId:    s.connSessionId,
		credential:       s.credential,
		channelId:        s.channelId,
		clientId:         s.clientId,
		pendingChannelId: s.pendingChannelId,
		pendingUserKey:   s.pendingUserKey,
	}
}

func (s *connSession) bindActive(channelId, clientId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelId = channelId
	s.clientId = clientId
	s.pendingChannelId = ""
	s.pendingUserKey = ""
}

func (s *connSession) bindPending(channelId, userKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingChannelId = channelId
	s.pendingUserKey = userKey
}

func (s *connSession) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingChannelId = ""
	s.pendingUserKey = ""
}

func (c *controller) sessionFromCtx(ctx context.Context) *connSession {
	session, _ := ctx.Value(sessionCtxKey).(*connSession)

	return session
}

func (c *controller) sessionByConn(conn *websocket.Conn) *connSession {
	c.sessionsMu.RLock()
	defer c.sessionsMu.RUnlock()

	return c.sessions[conn]
}
