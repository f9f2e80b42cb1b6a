package sfu

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
)

// requireAdmin resolves the caller and guards the admin capability.
func (s *service) requireAdmin(channelId, clientId string) (*domain.Room, *domain.Client, error) {
	room, client, err := s.resolveClient(channelId, clientId)
	if err != nil {
		return nil, nil, err
	}
	if !client.IsAdmin() {
		return nil, nil, ErrPermissionDenied
	}

	return room, client, nil
}

type KickUserParams struct {
	SessionParams
	TargetId string
}

type KickUserResponse struct {
	Target ClientInfo
	// TargetConn receives the kick notice and is closed by the controller;
	// removal happens through the regular disconnect path.
	TargetConn *websocket.Conn
}

func (s *service) KickUser(ctx context.Context, params *KickUserParams) (KickUserResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return KickUserResponse{}, err
	}

	target, ok := room.Client(params.TargetId)
	if !ok {
		return KickUserResponse{}, ErrUserNotFound
	}
	conn, err := s.connRepo.GetConn(target.Id)
	if err != nil {
		return KickUserResponse{}, ErrUserNotFound
	}

	s.logger.InfoContext(ctx, "client kicked", "channelId", params.ChannelId, "targetId", target.Id)

	return KickUserResponse{Target: clientInfo(room, target), TargetConn: conn}, nil
}

type CloseRemoteProducerParams struct {
	SessionParams
	ProducerId string
}

type CloseRemoteProducerResponse struct {
	Closed ProducerClosed
	Conns  []*websocket.Conn
	Feed   *FeedEvent
}

// CloseRemoteProducer closes any client's producer by id.
func (s *service) CloseRemoteProducer(ctx context.Context, params *CloseRemoteProducerParams) (CloseRemoteProducerResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return CloseRemoteProducerResponse{}, err
	}

	ownerId, kind, ok := room.FindProducer(params.ProducerId)
	if !ok {
		return CloseRemoteProducerResponse{}, ErrProducerNotFound
	}

	if err := room.Worker.CloseProducer(ctx, params.ProducerId); err != nil {
		return CloseRemoteProducerResponse{}, fmt.Errorf("failed to close producer: %w", err)
	}
	room.RemoveProducer(ownerId, kind, params.ProducerId)

	return CloseRemoteProducerResponse{
		Closed: ProducerClosed{ProducerId: params.ProducerId, OwnerUserId: ownerId},
		Conns:  s.getConns(room),
		Feed:   s.recomputeFeed(room),
	}, nil
}

type BulkCloseParams struct {
	SessionParams
}

type BulkCloseResponse struct {
	Closed []ProducerClosed
	Count  int
	Conns  []*websocket.Conn
	Feed   *FeedEvent
}

// MuteAll closes the audio producer of every non-admin client.
func (s *service) MuteAll(ctx context.Context, params *BulkCloseParams) (BulkCloseResponse, error) {
	return s.bulkCloseProducers(ctx, &params.SessionParams, domain.MediaKindAudio)
}

// CloseAllVideo closes the video producer of every non-admin client.
func (s *service) CloseAllVideo(ctx context.Context, params *BulkCloseParams) (BulkCloseResponse, error) {
	return s.bulkCloseProducers(ctx, &params.SessionParams, domain.MediaKindVideo)
}

func (s *service) bulkCloseProducers(ctx context.Context, params *SessionParams, kind domain.MediaKind) (BulkCloseResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return BulkCloseResponse{}, err
	}

	resp := BulkCloseResponse{}
	for _, m := range room.MediaSnapshot() {
		if m.Role == domain.RoleAdmin {
			continue
		}
		producerId, ok := m.Producers[kind]
		if !ok {
			continue
		}
		if err := room.Worker.CloseProducer(ctx, producerId); err != nil {
			s.logger.WarnContext(ctx, "failed to close producer", "producerId", producerId, "error", err)
			continue
		}
		room.RemoveProducer(m.ClientId, kind, producerId)
		resp.Closed = append(resp.Closed, ProducerClosed{ProducerId: producerId, OwnerUserId: m.ClientId})
		resp.Count++
	}

	resp.Conns = s.getConns(room)
	resp.Feed = s.recomputeFeed(room)

	return resp, nil
}

type RedirectUserParams struct {
	SessionParams
	TargetId  string
	NewRoomId string
}

type RedirectUserResponse struct {
	TargetConn *websocket.Conn
	NewRoomId  string
}

// RedirectUser signals the target to reconnect to another room; the existing
// binding is never mutated.
func (s *service) RedirectUser(ctx context.Context, params *RedirectUserParams) (RedirectUserResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return RedirectUserResponse{}, err
	}
	if params.NewRoomId == "" {
		return RedirectUserResponse{}, fmt.Errorf("%w: new room id is required", ErrValidation)
	}

	target, ok := room.Client(params.TargetId)
	if !ok {
		return RedirectUserResponse{}, ErrUserNotFound
	}
	conn, err := s.connRepo.GetConn(target.Id)
	if err != nil {
		return RedirectUserResponse{}, ErrUserNotFound
	}

	return RedirectUserResponse{TargetConn: conn, NewRoomId: params.NewRoomId}, nil
}

type AdmitUserParams struct {
	SessionParams
	UserKey string
}

type AdmitUserResponse struct {
	Admitted   ClientInfo
	RoomState  RoomState
	TargetConn *websocket.Conn
	// Conns receive userJoined; AdminConns additionally receive userAdmitted.
	Conns         []*websocket.Conn
	AdminConns    []*websocket.Conn
	AttendeeCount *AttendeeCountEvent
}

// AdmitUser moves a waiting-room joiner into the active client set.
func (s *service) AdmitUser(ctx context.Context, params *AdmitUserParams) (AdmitUserResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return AdmitUserResponse{}, err
	}
	if err := validateUserKey(params.UserKey); err != nil {
		return AdmitUserResponse{}, err
	}

	pending, ok := room.RemovePending(params.UserKey)
	if !ok {
		return AdmitUserResponse{}, ErrUserNotFound
	}
	if pending.TimeoutCancel != nil {
		pending.TimeoutCancel()
	}

	client := &domain.Client{
		Id:          pending.ClientId,
		UserKey:     pending.UserKey,
		DisplayName: pending.DisplayName,
		Role:        pending.Role,
		IsGhost:     pending.IsGhost,
		Producers:   make(map[domain.MediaKind]string),
	}

	pendingId := pendingConnId(params.ChannelId, pending.UserKey)
	if err := s.connRepo.Rekey(pendingId, client.Id); err != nil {
		return AdmitUserResponse{}, fmt.Errorf("failed to rebind pending connection: %w", err)
	}
	conn, err := s.connRepo.GetConn(client.Id)
	if err != nil {
		return AdmitUserResponse{}, ErrUserNotFound
	}

	s.mu.Lock()
	if s.rooms[params.ChannelId] != room {
		s.mu.Unlock()
		_ = s.connRepo.RemoveByClientId(client.Id)
		return AdmitUserResponse{}, ErrRoomNotFound
	}
	room.AddClient(client)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "pending client admitted", "channelId", params.ChannelId, "clientId", client.Id)

	resp := AdmitUserResponse{
		Admitted:   clientInfo(room, client),
		RoomState:  s.roomState(room, false),
		TargetConn: conn,
		Conns:      s.getConns(room, client.Id),
		AdminConns: s.getAdminConns(room),
	}
	if cfg := room.WebinarConfig(); cfg != nil && client.Role == domain.RoleAttendee {
		resp.AttendeeCount = &AttendeeCountEvent{Count: room.AttendeeCount(), Conns: s.getConns(room)}
	}

	return resp, nil
}

type RejectUserParams struct {
	SessionParams
	UserKey string
}

type RejectUserResponse struct {
	Rejected   PendingInfo
	TargetConn *websocket.Conn
	AdminConns []*websocket.Conn
}

// RejectUser discards a waiting-room joiner.
func (s *service) RejectUser(ctx context.Context, params *RejectUserParams) (RejectUserResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return RejectUserResponse{}, err
	}
	if err := validateUserKey(params.UserKey); err != nil {
		return RejectUserResponse{}, err
	}

	pending, ok := room.RemovePending(params.UserKey)
	if !ok {
		return RejectUserResponse{}, ErrUserNotFound
	}
	if pending.TimeoutCancel != nil {
		pending.TimeoutCancel()
	}

	pendingId := pendingConnId(params.ChannelId, pending.UserKey)
	conn, connErr := s.connRepo.GetConn(pendingId)
	_ = s.connRepo.RemoveByClientId(pendingId)
	if connErr != nil {
		conn = nil
	}

	s.logger.InfoContext(ctx, "pending client rejected", "channelId", params.ChannelId, "userKey", pending.UserKey)

	return RejectUserResponse{
		Rejected:   PendingInfo{UserKey: pending.UserKey, DisplayName: pending.DisplayName},
		TargetConn: conn,
		AdminConns: s.getAdminConns(room),
	}, nil
}

type RenameUserParams struct {
	SessionParams
	UserKey string
	NewName string
}

type DisplayNameUpdate struct {
	ClientId    string `json:"client_id"`
	DisplayName string `json:"display_name"`
}

type RenameUserResponse struct {
	// Updates holds one entry per active session sharing the user key.
	Updates []DisplayNameUpdate
	Conns   []*websocket.Conn
}

// RenameUser overrides the display name for a user key and applies it to
// every active session sharing it, emitting one update per session.
func (s *service) RenameUser(ctx context.Context, params *RenameUserParams) (RenameUserResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return RenameUserResponse{}, err
	}
	if err := validateUserKey(params.UserKey); err != nil {
		return RenameUserResponse{}, err
	}

	name := strings.TrimSpace(params.NewName)
	if name == "" {
		return RenameUserResponse{}, fmt.Errorf("%w: name is empty", ErrValidation)
	}
	if len(name) > s.cfg.NameMaxLength {
		return RenameUserResponse{}, fmt.Errorf("%w: name exceeds %d characters", ErrValidation, s.cfg.NameMaxLength)
	}

	// The override is only stored when the user key has an active session, so
	// renaming an absent user leaves no trace.
	clientIds := room.ApplyNameOverride(params.UserKey, name)
	if len(clientIds) == 0 {
		return RenameUserResponse{}, ErrUserNotFound
	}

	resp := RenameUserResponse{Conns: s.getConns(room)}
	for _, clientId := range clientIds {
		resp.Updates = append(resp.Updates, DisplayNameUpdate{ClientId: clientId, DisplayName: name})
	}

	return resp, nil
}
