package sfu

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsync/sfu-server/internal/domain"
)

func setupWebinar(t *testing.T, s *service, publicAccess bool, maxAttendees int) (admin JoinRoomResponse, cfg domain.WebinarConfig) {
	t.Helper()
	ctx := context.Background()

	admin = join(t, s, adminCred("host"), "room1")

	configResp, err := s.UpdateWebinarConfig(ctx, &UpdateWebinarConfigParams{
		SessionParams: SessionParams{ChannelId: admin.ChannelId, ClientId: admin.ClientId},
		MaxAttendees:  maxAttendees,
		PublicAccess:  publicAccess,
	})
	require.NoError(t, err)

	return admin, configResp.Config
}

func TestUpdateWebinarConfigLinkVersion(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp, cfg := setupWebinar(t, s, true, 0)
	adminParams := SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId}

	assert.Equal(t, 1, cfg.LinkVersion)
	assert.NotEmpty(t, cfg.LinkSlug)

	// Regenerating the link bumps the version and invalidates the old slug.
	regenResp, err := s.UpdateWebinarConfig(ctx, &UpdateWebinarConfigParams{
		SessionParams:  adminParams,
		PublicAccess:   true,
		RegenerateLink: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, regenResp.Config.LinkVersion)
	assert.NotEqual(t, cfg.LinkSlug, regenResp.Config.LinkSlug)

	_, err = s.ResolveLink(ctx, cfg.LinkSlug)
	assert.ErrorIs(t, err, ErrLinkNotFound)

	// Toggling public access bumps the version but keeps the slug.
	toggleResp, err := s.UpdateWebinarConfig(ctx, &UpdateWebinarConfigParams{
		SessionParams: adminParams,
		PublicAccess:  false,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, toggleResp.Config.LinkVersion)
	assert.Equal(t, regenResp.Config.LinkSlug, toggleResp.Config.LinkSlug)

	// Changing only the attendee limit leaves the version alone.
	limitResp, err := s.UpdateWebinarConfig(ctx, &UpdateWebinarConfigParams{
		SessionParams: adminParams,
		MaxAttendees:  50,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, limitResp.Config.LinkVersion)
}

func TestUpdateWebinarConfigRequiresAdmin(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")

	_, err := s.UpdateWebinarConfig(context.Background(), &UpdateWebinarConfigParams{
		SessionParams: SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId},
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestResolveLinkHidesChannel(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	_, cfg := setupWebinar(t, s, true, 25)

	info, err := s.ResolveLink(context.Background(), cfg.LinkSlug)
	require.NoError(t, err)
	assert.Equal(t, cfg.LinkSlug, info.LinkSlug)
	assert.Equal(t, 1, info.LinkVersion)
	assert.True(t, info.PublicAccess)
	assert.Equal(t, 25, info.MaxAttendees)

	_, err = s.ResolveLink(context.Background(), "no-such-slug")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestJoinByLinkPublicWebinar(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, cfg := setupWebinar(t, s, true, 0)

	joinResp, err := s.JoinByLink(ctx, &JoinByLinkParams{
		Credential: participantCred("viewer-1", "s1"),
		LinkSlug:   cfg.LinkSlug,
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)
	assert.False(t, joinResp.Pending)
	require.NotNil(t, joinResp.Joined)
	assert.Equal(t, domain.RoleAttendee, joinResp.Joined.Role)
	require.NotNil(t, joinResp.AttendeeCount)
	assert.Equal(t, 1, joinResp.AttendeeCount.Count)
}

func TestJoinByLinkNonPublicWaits(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	_, cfg := setupWebinar(t, s, false, 0)

	joinResp, err := s.JoinByLink(context.Background(), &JoinByLinkParams{
		Credential: participantCred("viewer-1", "s1"),
		LinkSlug:   cfg.LinkSlug,
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)
	assert.True(t, joinResp.Pending)
}

func TestJoinByLinkUnknownSlug(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	_, err := s.JoinByLink(context.Background(), &JoinByLinkParams{
		Credential: participantCred("viewer-1", "s1"),
		LinkSlug:   "missing",
		Conn:       &websocket.Conn{},
	})
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestAttendeeLimit(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, cfg := setupWebinar(t, s, true, 1)

	_, err := s.JoinByLink(ctx, &JoinByLinkParams{
		Credential: participantCred("viewer-1", "s1"),
		LinkSlug:   cfg.LinkSlug,
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)

	_, err = s.JoinByLink(ctx, &JoinByLinkParams{
		Credential: participantCred("viewer-2", "s2"),
		LinkSlug:   cfg.LinkSlug,
		Conn:       &websocket.Conn{},
	})
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestFeedFollowsSpeakerAndScreens(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp, cfg := setupWebinar(t, s, true, 0)
	adminParams := SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId}

	_, err := s.JoinByLink(ctx, &JoinByLinkParams{
		Credential: participantCred("viewer-1", "s1"),
		LinkSlug:   cfg.LinkSlug,
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)

	_, err = s.CreateTransport(ctx, &CreateTransportParams{SessionParams: adminParams, Direction: TransportProducer})
	require.NoError(t, err)

	produceResp, err := s.Produce(ctx, &ProduceParams{SessionParams: adminParams, Kind: domain.MediaKindAudio})
	require.NoError(t, err)
	require.NotNil(t, produceResp.Feed)
	assert.Equal(t, adminResp.ClientId, produceResp.Feed.Snapshot.SpeakerUserId)
	// Only attendees receive feed events.
	assert.Len(t, produceResp.Feed.Conns, 1)

	// A screen share joins the feed alongside the speaker.
	screenResp, err := s.Produce(ctx, &ProduceParams{SessionParams: adminParams, Kind: domain.MediaKindScreen})
	require.NoError(t, err)
	require.NotNil(t, screenResp.Feed)
	kinds := make([]domain.MediaKind, 0, len(screenResp.Feed.Snapshot.Producers))
	for _, p := range screenResp.Feed.Snapshot.Producers {
		kinds = append(kinds, p.Kind)
	}
	assert.Contains(t, kinds, domain.MediaKindAudio)
	assert.Contains(t, kinds, domain.MediaKindScreen)
}

func TestFeedUnchangedProducesNoEvent(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp, _ := setupWebinar(t, s, true, 0)
	adminParams := SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId}

	_, err := s.CreateTransport(ctx, &CreateTransportParams{SessionParams: adminParams, Direction: TransportProducer})
	require.NoError(t, err)
	produceResp, err := s.Produce(ctx, &ProduceParams{SessionParams: adminParams, Kind: domain.MediaKindAudio})
	require.NoError(t, err)
	require.NotNil(t, produceResp.Feed)

	// A recompute that yields an identical snapshot is suppressed.
	room, ok := s.getRoom(adminResp.ChannelId)
	require.True(t, ok)
	assert.Nil(t, s.recomputeFeed(room))
}

func TestNonWebinarRoomHasNoFeed(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")
	params := SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId}

	_, err := s.CreateTransport(ctx, &CreateTransportParams{SessionParams: params, Direction: TransportProducer})
	require.NoError(t, err)

	produceResp, err := s.Produce(ctx, &ProduceParams{SessionParams: params, Kind: domain.MediaKindAudio})
	require.NoError(t, err)
	assert.Nil(t, produceResp.Feed)
	assert.Nil(t, joinResp.AttendeeCount)
}
