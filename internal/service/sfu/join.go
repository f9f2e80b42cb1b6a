package sfu

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
)

func pendingConnId(channelId, userKey string) string {
	return "pending:" + channelId + ":" + userKey
}

type JoinRoomParams struct {
	Credential    *Credential
	RoomId        string
	ConnSessionId string
	ConnId        string
	Conn          *websocket.Conn

	viaLink bool
}

type JoinRoomResponse struct {
	ChannelId string

	// Pending admission: the joiner waits in the waiting room.
	Pending     bool
	PendingInfo *PendingInfo
	AdminConns  []*websocket.Conn

	// Active join.
	ClientId      string
	Joined        *ClientInfo
	RoomState     *RoomState
	Conns         []*websocket.Conn
	AttendeeCount *AttendeeCountEvent
}

// JoinRoom implements the join handshake: resolve or create the room, then
// either bind an active client or park the joiner in the waiting room.
func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	cred := params.Credential
	if cred == nil || cred.UserKey == "" {
		return JoinRoomResponse{}, ErrMissingIdentity
	}
	if params.RoomId == "" {
		return JoinRoomResponse{}, fmt.Errorf("%w: room id is required", ErrValidation)
	}

	tenantId := cred.TenantId
	if tenantId == "" {
		tenantId = "default"
	}

	room, err := s.getOrCreateRoom(ctx, tenantId, params.RoomId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	if s.requiresAdmission(cred, params.viaLink, room.WebinarConfig()) {
		return s.joinPending(ctx, room, params)
	}

	return s.joinActive(ctx, room, params)
}

// requiresAdmission is the admission policy: admins always bypass; guest-key
// users and link joiners into non-public webinars wait for admission.
func (s *service) requiresAdmission(cred *Credential, viaLink bool, cfg *domain.WebinarConfig) bool {
	if cred.Role == domain.RoleAdmin {
		return false
	}
	if cred.IsGuest() {
		return true
	}
	if viaLink && cfg != nil && !cfg.PublicAccess {
		return true
	}

	return false
}

func (s *service) joinPending(ctx context.Context, room *domain.Room, params *JoinRoomParams) (JoinRoomResponse, error) {
	cred := params.Credential
	channelId := room.ChannelId

	pending := &domain.PendingClient{
		UserKey:     cred.UserKey,
		DisplayName: resolveDisplayName(room, cred),
		RequestedAt: time.Now(),
		ClientId:    deriveClientId(cred, params.ConnSessionId, params.ConnId),
		Role:        cred.Role,
		IsGhost:     cred.Ghost,
	}

	if err := s.connRepo.Add(params.Conn, pendingConnId(channelId, cred.UserKey)); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to register pending connection: %w", err)
	}

	timer := time.AfterFunc(s.cfg.PendingTTL, func() {
		s.expirePending(channelId, cred.UserKey)
	})
	pending.TimeoutCancel = func() { timer.Stop() }

	// Same registry re-check as the active path: the room may have been
	// destroyed since it was resolved, and a pending entry on a dead room
	// would never expire or be admitted.
	s.mu.Lock()
	if s.rooms[channelId] != room {
		s.mu.Unlock()
		timer.Stop()
		_ = s.connRepo.RemoveByClientId(pendingConnId(channelId, cred.UserKey))
		return JoinRoomResponse{}, ErrRoomNotFound
	}
	room.AddPending(pending)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "client pending admission", "channelId", channelId, "userKey", cred.UserKey)

	return JoinRoomResponse{
		ChannelId:   channelId,
		Pending:     true,
		PendingInfo: &PendingInfo{UserKey: pending.UserKey, DisplayName: pending.DisplayName},
		AdminConns:  s.getAdminConns(room),
	}, nil
}

func (s *service) joinActive(ctx context.Context, room *domain.Room, params *JoinRoomParams) (JoinRoomResponse, error) {
	cred := params.Credential
	channelId := room.ChannelId

	if cfg := room.WebinarConfig(); cfg != nil && cfg.MaxAttendees > 0 &&
		cred.Role == domain.RoleAttendee && room.AttendeeCount() >= cfg.MaxAttendees {
		return JoinRoomResponse{}, ErrRoomFull
	}

	client := &domain.Client{
		Id:          deriveClientId(cred, params.ConnSessionId, params.ConnId),
		UserKey:     cred.UserKey,
		SessionId:   params.ConnSessionId,
		DisplayName: resolveDisplayName(room, cred),
		Role:        cred.Role,
		IsGhost:     cred.Ghost,
		Producers:   make(map[domain.MediaKind]string),
	}

	if err := s.connRepo.Add(params.Conn, client.Id); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to register connection: %w", err)
	}

	// Client-count mutations happen under the registry lock so cleanup's
	// emptiness check and this insert cannot interleave.
	s.mu.Lock()
	if s.rooms[channelId] != room {
		s.mu.Unlock()
		_ = s.connRepo.RemoveByClientId(client.Id)
		return JoinRoomResponse{}, ErrRoomNotFound
	}
	room.AddClient(client)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "client joined", "channelId", channelId, "clientId", client.Id)

	info := clientInfo(room, client)
	state := s.roomState(room, false)
	resp := JoinRoomResponse{
		ChannelId: channelId,
		ClientId:  client.Id,
		Joined:    &info,
		RoomState: &state,
		Conns:     s.getConns(room, client.Id),
	}

	if cfg := room.WebinarConfig(); cfg != nil && client.Role == domain.RoleAttendee {
		resp.AttendeeCount = &AttendeeCountEvent{
			Count: room.AttendeeCount(),
			Conns: s.getConns(room),
		}
	}

	return resp, nil
}

type DisconnectClientParams struct {
	ChannelId string
	ClientId  string
}

type DisconnectClientResponse struct {
	Left          *ClientInfo
	Conns         []*websocket.Conn
	Feed          *FeedEvent
	AttendeeCount *AttendeeCountEvent
	Cleanup       CleanupRoomResponse
}

// DisconnectClient removes an active client and destroys the room if it was
// the last one.
func (s *service) DisconnectClient(ctx context.Context, params *DisconnectClientParams) (DisconnectClientResponse, error) {
	room, ok := s.getRoom(params.ChannelId)
	if !ok {
		_ = s.connRepo.RemoveByClientId(params.ClientId)
		return DisconnectClientResponse{}, nil
	}

	s.mu.Lock()
	client, removed := room.RemoveClient(params.ClientId)
	empty := room.ActiveCount() == 0
	s.mu.Unlock()

	_ = s.connRepo.RemoveByClientId(params.ClientId)

	if !removed {
		return DisconnectClientResponse{}, nil
	}

	// The room's producers die with the client; best-effort engine cleanup.
	for _, producerId := range client.Producers {
		if err := room.Worker.CloseProducer(ctx, producerId); err != nil {
			s.logger.WarnContext(ctx, "failed to close producer", "producerId", producerId, "error", err)
		}
	}

	info := clientInfo(room, client)
	resp := DisconnectClientResponse{
		Left:  &info,
		Conns: s.getConns(room),
		Feed:  s.recomputeFeed(room),
	}
	if cfg := room.WebinarConfig(); cfg != nil && client.Role == domain.RoleAttendee {
		resp.AttendeeCount = &AttendeeCountEvent{Count: room.AttendeeCount(), Conns: resp.Conns}
	}

	s.logger.InfoContext(ctx, "client left", "channelId", params.ChannelId, "clientId", params.ClientId)

	if empty {
		cleanup, err := s.CleanupRoom(ctx, params.ChannelId)
		if err != nil {
			return resp, err
		}
		resp.Cleanup = cleanup
	}

	return resp, nil
}

// DisconnectPending removes a waiting-room joiner whose connection dropped.
func (s *service) DisconnectPending(ctx context.Context, channelId, userKey string) {
	room, ok := s.getRoom(channelId)
	if !ok {
		_ = s.connRepo.RemoveByClientId(pendingConnId(channelId, userKey))
		return
	}

	if p, ok := room.RemovePending(userKey); ok && p.TimeoutCancel != nil {
		p.TimeoutCancel()
	}
	_ = s.connRepo.RemoveByClientId(pendingConnId(channelId, userKey))

	s.logger.InfoContext(ctx, "pending client disconnected", "channelId", channelId, "userKey", userKey)
}

// SetPendingTimeoutHandler installs the callback used to notify a joiner whose
// admission timed out. The connection is handed over for a rejection write
// and close.
func (s *service) SetPendingTimeoutHandler(f func(conn *websocket.Conn, channelId string)) {
	s.onPendingTimeout = f
}

// expirePending fires when a waiting-room entry outlives PendingTTL; it
// behaves exactly like an admin reject.
func (s *service) expirePending(channelId, userKey string) {
	room, ok := s.getRoom(channelId)
	if !ok {
		return
	}
	if _, ok := room.RemovePending(userKey); !ok {
		return
	}

	pendingId := pendingConnId(channelId, userKey)
	conn, err := s.connRepo.GetConn(pendingId)
	_ = s.connRepo.RemoveByClientId(pendingId)

	s.logger.Info("pending admission timed out", "channelId", channelId, "userKey", userKey)

	if err == nil && s.onPendingTimeout != nil {
		s.onPendingTimeout(conn, channelId)
	}
}
