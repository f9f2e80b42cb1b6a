package sfu

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
)

const linkSlugLength = 12

type UpdateWebinarConfigParams struct {
	SessionParams
	MaxAttendees   int
	PublicAccess   bool
	RegenerateLink bool
}

type UpdateWebinarConfigResponse struct {
	Config domain.WebinarConfig
	Conns  []*websocket.Conn
}

// UpdateWebinarConfig switches a room into webinar mode or updates its
// configuration. The link version increments whenever the slug or the
// public-access flag changes, invalidating cached client references.
func (s *service) UpdateWebinarConfig(ctx context.Context, params *UpdateWebinarConfigParams) (UpdateWebinarConfigResponse, error) {
	room, _, err := s.requireAdmin(params.ChannelId, params.ClientId)
	if err != nil {
		return UpdateWebinarConfigResponse{}, err
	}
	if params.MaxAttendees < 0 {
		return UpdateWebinarConfigResponse{}, fmt.Errorf("%w: max attendees must not be negative", ErrValidation)
	}

	current := room.WebinarConfig()
	cfg := domain.WebinarConfig{MaxAttendees: params.MaxAttendees, PublicAccess: params.PublicAccess}

	switch {
	case current == nil:
		cfg.LinkSlug = s.generator.GenerateRandomString(linkSlugLength)
		cfg.LinkVersion = 1
	case params.RegenerateLink:
		cfg.LinkSlug = s.generator.GenerateRandomString(linkSlugLength)
		cfg.LinkVersion = current.LinkVersion + 1
	default:
		cfg.LinkSlug = current.LinkSlug
		cfg.LinkVersion = current.LinkVersion
		if current.PublicAccess != params.PublicAccess {
			cfg.LinkVersion++
		}
	}

	s.mu.Lock()
	if current != nil && current.LinkSlug != cfg.LinkSlug {
		delete(s.webinarLinks, current.LinkSlug)
	}
	s.webinarLinks[cfg.LinkSlug] = room.ChannelId
	s.mu.Unlock()

	room.SetWebinar(&cfg)

	s.logger.InfoContext(ctx, "webinar config updated",
		"channelId", room.ChannelId, "linkVersion", cfg.LinkVersion, "publicAccess", cfg.PublicAccess)

	return UpdateWebinarConfigResponse{
		Config: cfg,
		Conns:  s.getConns(room),
	}, nil
}

// LinkInfo is the public view of a webinar link; it never exposes the tenant
// or room id behind the slug.
type LinkInfo struct {
	LinkSlug     string `json:"link_slug"`
	LinkVersion  int    `json:"link_version"`
	PublicAccess bool   `json:"public_access"`
	MaxAttendees int    `json:"max_attendees"`
}

func (s *service) ResolveLink(ctx context.Context, slug string) (LinkInfo, error) {
	s.mu.Lock()
	channelId, ok := s.webinarLinks[slug]
	s.mu.Unlock()
	if !ok {
		return LinkInfo{}, ErrLinkNotFound
	}

	room, ok := s.getRoom(channelId)
	if !ok {
		return LinkInfo{}, ErrLinkNotFound
	}
	cfg := room.WebinarConfig()
	if cfg == nil {
		return LinkInfo{}, ErrLinkNotFound
	}

	return LinkInfo{
		LinkSlug:     cfg.LinkSlug,
		LinkVersion:  cfg.LinkVersion,
		PublicAccess: cfg.PublicAccess,
		MaxAttendees: cfg.MaxAttendees,
	}, nil
}

type JoinByLinkParams struct {
	Credential    *Credential
	LinkSlug      string
	ConnSessionId string
	ConnId        string
	Conn          *websocket.Conn
}

// JoinByLink joins through a webinar link slug. Link joiners become
// attendee-role clients unless their credential carries the admin role.
func (s *service) JoinByLink(ctx context.Context, params *JoinByLinkParams) (JoinRoomResponse, error) {
	s.mu.Lock()
	channelId, ok := s.webinarLinks[params.LinkSlug]
	s.mu.Unlock()
	if !ok {
		return JoinRoomResponse{}, ErrLinkNotFound
	}

	tenantId, roomId, ok := strings.Cut(channelId, ":")
	if !ok {
		return JoinRoomResponse{}, ErrLinkNotFound
	}

	cred := params.Credential
	if cred == nil || cred.UserKey == "" {
		return JoinRoomResponse{}, ErrMissingIdentity
	}
	linkCred := *cred
	linkCred.TenantId = tenantId
	if linkCred.Role != domain.RoleAdmin {
		linkCred.Role = domain.RoleAttendee
	}

	return s.JoinRoom(ctx, &JoinRoomParams{
		Credential:    &linkCred,
		RoomId:        roomId,
		ConnSessionId: params.ConnSessionId,
		ConnId:        params.ConnId,
		Conn:          params.Conn,
		viaLink:       true,
	})
}
