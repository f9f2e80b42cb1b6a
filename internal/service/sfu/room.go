package sfu

import (
	"context"
	"fmt"
	"sort"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"

	"github.com/meetsync/sfu-server/internal/domain"
)

// getOrCreateRoom resolves the channel to a registered room, creating it
// exactly once under concurrent joins. Router creation is a suspension point,
// so an in-flight marker keeps it outside the registry lock: the first caller
// creates, the rest wait on the marker and re-check.
func (s *service) getOrCreateRoom(ctx context.Context, tenantId, roomId string) (*domain.Room, error) {
	channelId := domain.ChannelId(tenantId, roomId)

	for {
		s.mu.Lock()
		if s.draining {
			s.mu.Unlock()
			return nil, ErrDraining
		}
		if room, ok := s.rooms[channelId]; ok {
			s.mu.Unlock()
			return room, nil
		}
		if inflight, ok := s.inflight[channelId]; ok {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-inflight:
			}
			continue
		}

		inflight := make(chan struct{})
		s.inflight[channelId] = inflight
		s.mu.Unlock()

		room, err := s.createRoom(ctx, tenantId, roomId)

		s.mu.Lock()
		if err == nil {
			s.rooms[channelId] = room
		}
		delete(s.inflight, channelId)
		close(inflight)
		s.mu.Unlock()

		if err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "room created", "channelId", channelId)

		// Capture failures must not block the meeting itself.
		if err := s.pipeline.StartCapture(ctx, channelId); err != nil {
			s.logger.WarnContext(ctx, "failed to start transcript capture", "channelId", channelId, "error", err)
		}

		return room, nil
	}
}

func (s *service) createRoom(ctx context.Context, tenantId, roomId string) (*domain.Room, error) {
	w, err := s.pool.SelectWorker(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select worker: %w", err)
	}

	routerId, err := w.CreateRouter(ctx, s.cfg.CodecConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return domain.NewRoom(tenantId, roomId, w, routerId), nil
}

type CleanupRoomResponse struct {
	Cleaned bool
	// RejectedPendingConns are the waiting-room connections of the destroyed
	// room; the controller notifies and closes them.
	RejectedPendingConns []*websocket.Conn
}

// CleanupRoom destroys the room if it has zero active clients. Pending-only
// rooms are destroyed too; their joiners are rejected rather than silently
// stranded. The router close and the post-meeting pipeline run outside the
// registry lock.
func (s *service) CleanupRoom(ctx context.Context, channelId string) (CleanupRoomResponse, error) {
	s.mu.Lock()
	room, ok := s.rooms[channelId]
	if !ok || room.ActiveCount() > 0 {
		s.mu.Unlock()
		return CleanupRoomResponse{}, nil
	}
	delete(s.rooms, channelId)
	if cfg := room.WebinarConfig(); cfg != nil && cfg.LinkSlug != "" {
		delete(s.webinarLinks, cfg.LinkSlug)
	}
	s.mu.Unlock()

	resp := CleanupRoomResponse{Cleaned: true}
	for _, p := range room.PendingList() {
		if p.TimeoutCancel != nil {
			p.TimeoutCancel()
		}
		pendingId := pendingConnId(channelId, p.UserKey)
		if conn, err := s.connRepo.GetConn(pendingId); err == nil {
			resp.RejectedPendingConns = append(resp.RejectedPendingConns, conn)
		}
		_ = s.connRepo.RemoveByClientId(pendingId)
		room.RemovePending(p.UserKey)
	}

	if err := room.Worker.CloseRouter(ctx, room.RouterId); err != nil {
		s.logger.WarnContext(ctx, "failed to close router", "channelId", channelId, "error", err)
	}

	// Post-meeting pipeline: detached from the triggering connection and from
	// room destruction, which already happened.
	go s.pipeline.Finalize(context.WithoutCancel(ctx), channelId)

	s.logger.InfoContext(ctx, "room destroyed", "channelId", channelId)

	return resp, nil
}

// GetRooms lists every registered room with its participant count, ordered by
// channel id.
func (s *service) GetRooms(ctx context.Context) []RoomInfo {
	s.mu.Lock()
	channelIds := maps.Keys(s.rooms)
	rooms := make([]*domain.Room, 0, len(channelIds))
	for _, id := range channelIds {
		rooms = append(rooms, s.rooms[id])
	}
	s.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, RoomInfo{
			ChannelId:        room.ChannelId,
			ParticipantCount: room.ActiveCount(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ChannelId < infos[j].ChannelId })

	return infos
}
