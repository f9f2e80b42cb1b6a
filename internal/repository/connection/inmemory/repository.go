package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/meetsync/sfu-server/internal/repository/connection"
)

// repo indexes live websocket connections by client id. Pending joiners are
// registered under their waiting-room key until admitted.
type repo struct {
	byConn map[*websocket.Conn]string
	byId   map[string]*websocket.Conn
	mu     sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		byConn: make(map[*websocket.Conn]string),
		byId:   make(map[string]*websocket.Conn),
	}
}

func (r *repo) Add(conn *websocket.Conn, clientId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byConn[conn] != "" || r.byId[clientId] != nil {
		return connection.ErrAlreadyExists
	}

	r.byConn[conn] = clientId
	r.byId[clientId] = conn

	return nil
}

// Rekey moves a connection to a new id, e.g. from a waiting-room key to a
// client id on admission.
func (r *repo) Rekey(oldId, newId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byId[oldId]
	if !ok {
		return connection.ErrNotFound
	}
	if r.byId[newId] != nil {
		return connection.ErrAlreadyExists
	}

	delete(r.byId, oldId)
	r.byId[newId] = conn
	r.byConn[conn] = newId

	return nil
}

func (r *repo) RemoveByClientId(clientId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byId[clientId]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.byConn, conn)
	delete(r.byId, clientId)

	return nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientId, ok := r.byConn[conn]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.byConn, conn)
	delete(r.byId, clientId)

	return nil
}

func (r *repo) GetConn(clientId string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byId[clientId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) GetClientId(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clientId, ok := r.byConn[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return clientId, nil
}
