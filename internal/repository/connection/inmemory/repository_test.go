package inmemory

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsync/sfu-server/internal/repository/connection"
)

func TestAddAndGet(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}

	require.NoError(t, r.Add(conn, "client-1"))

	got, err := r.GetConn("client-1")
	require.NoError(t, err)
	assert.Same(t, conn, got)

	clientId, err := r.GetClientId(conn)
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientId)
}

func TestAddDuplicate(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}

	require.NoError(t, r.Add(conn, "client-1"))
	assert.ErrorIs(t, r.Add(&websocket.Conn{}, "client-1"), connection.ErrAlreadyExists)
	assert.ErrorIs(t, r.Add(conn, "client-2"), connection.ErrAlreadyExists)
}

func TestRekey(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}

	require.NoError(t, r.Add(conn, "pending:default:room1:user-1"))
	require.NoError(t, r.Rekey("pending:default:room1:user-1", "user-1#s1"))

	_, err := r.GetConn("pending:default:room1:user-1")
	assert.ErrorIs(t, err, connection.ErrNotFound)

	got, err := r.GetConn("user-1#s1")
	require.NoError(t, err)
	assert.Same(t, conn, got)

	clientId, err := r.GetClientId(conn)
	require.NoError(t, err)
	assert.Equal(t, "user-1#s1", clientId)
}

func TestRekeyMissing(t *testing.T) {
	r := NewRepo()

	assert.ErrorIs(t, r.Rekey("missing", "new"), connection.ErrNotFound)
}

func TestRemove(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}

	require.NoError(t, r.Add(conn, "client-1"))
	require.NoError(t, r.RemoveByClientId("client-1"))

	_, err := r.GetConn("client-1")
	assert.ErrorIs(t, err, connection.ErrNotFound)
	assert.ErrorIs(t, r.RemoveByConn(conn), connection.ErrNotFound)
}
