package domain

import (
	"sync"

	"github.com/meetsync/sfu-server/internal/worker"
)

// ChannelId composes the registry key. The tenant prefix isolates
// identically-named rooms across tenants.
func ChannelId(tenantId, roomId string) string {
	return tenantId + ":" + roomId
}

// Room is one meeting. It exclusively owns its router on the media worker.
// All mutable state is guarded by the room mutex; media-engine calls must
// never run under it.
type Room struct {
	Id        string
	TenantId  string
	ChannelId string

	Worker   worker.Worker
	RouterId string

	mu            sync.RWMutex
	clients       map[string]*Client        // client id -> client
	pending       map[string]*PendingClient // user key -> pending client
	nameOverrides map[string]string         // user key -> display name
	handRaised    map[string]struct{}       // client id set
	webinar       *WebinarConfig
	lastFeed      *FeedSnapshot
	activeSpeaker string // user id of the last audio producer owner
}

func NewRoom(tenantId, roomId string, w worker.Worker, routerId string) *Room {
	return &Room{
		Id:            roomId,
		TenantId:      tenantId,
		ChannelId:     ChannelId(tenantId, roomId),
		Worker:        w,
		RouterId:      routerId,
		clients:       make(map[string]*Client),
		pending:       make(map[string]*PendingClient),
		nameOverrides: make(map[string]string),
		handRaised:    make(map[string]struct{}),
	}
}

func (r *Room) AddClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Id] = c
}

func (r *Room) RemoveClient(clientId string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientId]
	if ok {
		delete(r.clients, clientId)
		delete(r.handRaised, clientId)
	}

	return c, ok
}

func (r *Room) Client(clientId string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientId]

	return c, ok
}

// Clients returns a snapshot of the active client list.
func (r *Room) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}

	return out
}

// ClientDisplayName reads the client's current display name under the room
// lock; ok is false when the client is no longer active.
func (r *Room) ClientDisplayName(clientId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientId]
	if !ok {
		return "", false
	}

	return c.DisplayName, true
}

func (r *Room) ProducerTransport(clientId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientId]
	if !ok {
		return "", false
	}

	return c.ProducerTransportId, true
}

func (r *Room) ConsumerTransport(clientId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientId]
	if !ok {
		return "", false
	}

	return c.ConsumerTransportId, true
}

func (r *Room) SetProducerTransport(clientId, transportId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[clientId]; ok {
		c.ProducerTransportId = transportId
	}
}

func (r *Room) SetConsumerTransport(clientId, transportId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[clientId]; ok {
		c.ConsumerTransportId = transportId
	}
}

func (r *Room) Producer(clientId string, kind MediaKind) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientId]
	if !ok {
		return "", false
	}
	producerId, ok := c.Producers[kind]

	return producerId, ok
}

func (r *Room) SetProducer(clientId string, kind MediaKind, producerId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[clientId]; ok {
		c.Producers[kind] = producerId
	}
}

// RemoveProducer deletes the client's producer binding for the kind only while
// it still holds the given id; a binding replaced in the meantime is left
// alone.
func (r *Room) RemoveProducer(clientId string, kind MediaKind, producerId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientId]
	if !ok || c.Producers[kind] != producerId {
		return false
	}
	delete(c.Producers, kind)

	return true
}

// FindProducer locates a producer by id across every active client.
func (r *Room) FindProducer(producerId string) (clientId string, kind MediaKind, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		for k, id := range c.Producers {
			if id == producerId {
				return c.Id, k, true
			}
		}
	}

	return "", "", false
}

// ClientMedia is a point-in-time copy of one client's media bindings.
type ClientMedia struct {
	ClientId  string
	Role      Role
	Producers map[MediaKind]string
}

// MediaSnapshot copies every active client's producer bindings so callers can
// iterate them without holding the room lock.
func (r *Room) MediaSnapshot() []ClientMedia {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClientMedia, 0, len(r.clients))
	for _, c := range r.clients {
		producers := make(map[MediaKind]string, len(c.Producers))
		for k, id := range c.Producers {
			producers[k] = id
		}
		out = append(out, ClientMedia{ClientId: c.Id, Role: c.Role, Producers: producers})
	}

	return out
}

func (r *Room) Admins() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Client
	for _, c := range r.clients {
		if c.IsAdmin() {
			out = append(out, c)
		}
	}

	return out
}

// ActiveCount counts active clients only; pending clients do not keep a room
// alive.
func (r *Room) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

func (r *Room) AttendeeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.clients {
		if c.Role == RoleAttendee {
			n++
		}
	}

	return n
}

func (r *Room) AddPending(p *PendingClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[p.UserKey] = p
}

func (r *Room) RemovePending(userKey string) (*PendingClient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[userKey]
	if ok {
		delete(r.pending, userKey)
	}

	return p, ok
}

func (r *Room) Pending(userKey string) (*PendingClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pending[userKey]

	return p, ok
}

func (r *Room) PendingList() []*PendingClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PendingClient, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}

	return out
}

// ApplyNameOverride stores a display-name override and renames every active
// session sharing the user key, returning the affected client ids. No active
// session means no override is stored.
func (r *Room) ApplyNameOverride(userKey, name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var clientIds []string
	for _, c := range r.clients {
		if c.UserKey == userKey {
			c.DisplayName = name
			clientIds = append(clientIds, c.Id)
		}
	}
	if len(clientIds) > 0 {
		r.nameOverrides[userKey] = name
	}

	return clientIds
}

func (r *Room) NameOverride(userKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.nameOverrides[userKey]

	return name, ok
}

func (r *Room) SetHandRaised(clientId string, raised bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if raised {
		r.handRaised[clientId] = struct{}{}
	} else {
		delete(r.handRaised, clientId)
	}
}

func (r *Room) IsHandRaised(clientId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handRaised[clientId]

	return ok
}

func (r *Room) SetWebinar(cfg *WebinarConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webinar = cfg
}

func (r *Room) WebinarConfig() *WebinarConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.webinar == nil {
		return nil
	}
	cfg := *r.webinar

	return &cfg
}

func (r *Room) SetActiveSpeaker(userId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeSpeaker = userId
}

func (r *Room) ActiveSpeaker() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.activeSpeaker
}

// SwapLastFeed records the snapshot as broadcast and reports whether it
// differs from the previous one.
func (r *Room) SwapLastFeed(snapshot *FeedSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snapshot.Equal(r.lastFeed) {
		return false
	}
	r.lastFeed = snapshot

	return true
}
