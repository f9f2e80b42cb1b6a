package sfu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsync/sfu-server/internal/domain"
	"github.com/meetsync/sfu-server/internal/repository/connection/inmemory"
	"github.com/meetsync/sfu-server/internal/worker"
)

type fakeWorker struct {
	mu              sync.Mutex
	routersCreated  atomic.Int32
	closedRouters   []string
	closedProducers []string
	produceSeq      int
}

func (w *fakeWorker) ResourceUsage(ctx context.Context) (worker.ResourceUsage, error) {
	return worker.ResourceUsage{}, nil
}

func (w *fakeWorker) CreateRouter(ctx context.Context, codecConfig json.RawMessage) (string, error) {
	n := w.routersCreated.Add(1)

	return fmt.Sprintf("router-%d", n), nil
}

func (w *fakeWorker) CloseRouter(ctx context.Context, routerId string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closedRouters = append(w.closedRouters, routerId)

	return nil
}

func (w *fakeWorker) RouterRtpCapabilities(ctx context.Context, routerId string) (json.RawMessage, error) {
	return json.RawMessage(`{"codecs":[]}`), nil
}

func (w *fakeWorker) CreateTransport(ctx context.Context, routerId string) (worker.TransportInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.produceSeq++

	return worker.TransportInfo{Id: fmt.Sprintf("transport-%d", w.produceSeq)}, nil
}

func (w *fakeWorker) ConnectTransport(ctx context.Context, transportId string, dtlsParameters json.RawMessage) error {
	return nil
}

func (w *fakeWorker) Produce(ctx context.Context, transportId string, kind string, rtpParameters json.RawMessage) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.produceSeq++

	return fmt.Sprintf("producer-%d", w.produceSeq), nil
}

func (w *fakeWorker) CloseProducer(ctx context.Context, producerId string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closedProducers = append(w.closedProducers, producerId)

	return nil
}

func (w *fakeWorker) Consume(ctx context.Context, transportId string, producerId string, rtpCapabilities json.RawMessage) (worker.ConsumerInfo, error) {
	return worker.ConsumerInfo{Id: "consumer-1", ProducerId: producerId, Kind: "audio"}, nil
}

type fakePool struct {
	w *fakeWorker
}

func (p *fakePool) SelectWorker(ctx context.Context) (worker.Worker, error) {
	return p.w, nil
}

type fakePipeline struct {
	mu        sync.Mutex
	started   []string
	finalized chan string
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{finalized: make(chan string, 8)}
}

func (p *fakePipeline) StartCapture(ctx context.Context, channelId string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, channelId)

	return nil
}

func (p *fakePipeline) Finalize(ctx context.Context, channelId string) {
	p.finalized <- channelId
}

func (p *fakePipeline) startedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.started)
}

func newTestService(t *testing.T, cfg *Config) (*service, *fakeWorker, *fakePipeline) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{Secret: "test-secret"}
	}
	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}

	w := &fakeWorker{}
	pipeline := newFakePipeline()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(&fakePool{w: w}, inmemory.NewRepo(), pipeline, cfg, logger)

	return s, w, pipeline
}

func participantCred(userKey, sessionId string) *Credential {
	return &Credential{UserKey: userKey, SessionId: sessionId, Role: domain.RoleParticipant}
}

func adminCred(userKey string) *Credential {
	return &Credential{UserKey: userKey, SessionId: "s-" + userKey, Role: domain.RoleAdmin}
}

func join(t *testing.T, s *service, cred *Credential, roomId string) JoinRoomResponse {
	t.Helper()
	resp, err := s.JoinRoom(context.Background(), &JoinRoomParams{
		Credential: cred,
		RoomId:     roomId,
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)

	return resp
}

func TestJoinRoomCreatesRoomOnce(t *testing.T) {
	s, w, pipeline := newTestService(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.JoinRoom(context.Background(), &JoinRoomParams{
				Credential: participantCred(fmt.Sprintf("user-%d", i), fmt.Sprintf("s%d", i)),
				RoomId:     "room1",
				Conn:       &websocket.Conn{},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), w.routersCreated.Load())
	assert.Equal(t, 1, pipeline.startedCount())

	rooms := s.GetRooms(context.Background())
	require.Len(t, rooms, 1)
	assert.Equal(t, "default:room1", rooms[0].ChannelId)
	assert.Equal(t, 8, rooms[0].ParticipantCount)
}

func TestLastClientLeavingDestroysRoom(t *testing.T) {
	s, w, pipeline := newTestService(t, nil)

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")

	disconnectResp, err := s.DisconnectClient(context.Background(), &DisconnectClientParams{
		ChannelId: joinResp.ChannelId,
		ClientId:  joinResp.ClientId,
	})
	require.NoError(t, err)
	assert.True(t, disconnectResp.Cleanup.Cleaned)

	select {
	case channelId := <-pipeline.finalized:
		assert.Equal(t, "default:room1", channelId)
	case <-time.After(time.Second):
		t.Fatal("pipeline finalize was not triggered")
	}

	assert.Equal(t, []string{"router-1"}, w.closedRouters)
	assert.Empty(t, s.GetRooms(context.Background()))
}

func TestTenantIsolation(t *testing.T) {
	s, w, _ := newTestService(t, nil)

	credA := participantCred("user-1", "s1")
	credA.TenantId = "acme"
	credB := participantCred("user-2", "s2")
	credB.TenantId = "globex"

	respA := join(t, s, credA, "standup")
	respB := join(t, s, credB, "standup")

	assert.Equal(t, "acme:standup", respA.ChannelId)
	assert.Equal(t, "globex:standup", respB.ChannelId)
	assert.Equal(t, int32(2), w.routersCreated.Load())
}

func TestDrainingRejectsJoins(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	s.SetDraining(true)

	_, err := s.JoinRoom(context.Background(), &JoinRoomParams{
		Credential: participantCred("user-1", "s1"),
		RoomId:     "room1",
		Conn:       &websocket.Conn{},
	})
	assert.ErrorIs(t, err, ErrDraining)
}

func TestGuestWaitsForAdmission(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")

	guest := participantCred("guest:abc", "sg")
	guestResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		Credential: guest,
		RoomId:     "room1",
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)
	assert.True(t, guestResp.Pending)
	require.NotNil(t, guestResp.PendingInfo)
	assert.Equal(t, "guest:abc", guestResp.PendingInfo.UserKey)
	require.Len(t, guestResp.AdminConns, 1)

	admitResp, err := s.AdmitUser(ctx, &AdmitUserParams{
		SessionParams: SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId},
		UserKey:       "guest:abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "guest:abc", admitResp.Admitted.UserKey)
	assert.NotNil(t, admitResp.TargetConn)

	rooms := s.GetRooms(ctx)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, rooms[0].ParticipantCount)

	// The admitted client is fully active.
	_, err = s.SendChat(ctx, &SendChatParams{
		SessionParams: SessionParams{ChannelId: adminResp.ChannelId, ClientId: admitResp.Admitted.Id},
		Content:       "hello",
	})
	assert.NoError(t, err)
}

func TestRejectPendingUser(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		Credential: participantCred("guest:abc", "sg"),
		RoomId:     "room1",
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)

	rejectResp, err := s.RejectUser(ctx, &RejectUserParams{
		SessionParams: SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId},
		UserKey:       "guest:abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "guest:abc", rejectResp.Rejected.UserKey)
	assert.NotNil(t, rejectResp.TargetConn)

	// A second reject finds nothing.
	_, err = s.RejectUser(ctx, &RejectUserParams{
		SessionParams: SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId},
		UserKey:       "guest:abc",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPendingTimeoutBehavesLikeReject(t *testing.T) {
	s, _, _ := newTestService(t, &Config{PendingTTL: 20 * time.Millisecond})
	ctx := context.Background()

	var timedOut atomic.Bool
	s.SetPendingTimeoutHandler(func(conn *websocket.Conn, channelId string) {
		timedOut.Store(true)
	})

	adminResp := join(t, s, adminCred("host"), "room1")

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		Credential: participantCred("guest:abc", "sg"),
		RoomId:     "room1",
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)

	assert.Eventually(t, timedOut.Load, time.Second, 5*time.Millisecond)

	_, err = s.AdmitUser(ctx, &AdmitUserParams{
		SessionParams: SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId},
		UserKey:       "guest:abc",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPendingOnlyRoomIsDestroyed(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		Credential: participantCred("guest:abc", "sg"),
		RoomId:     "room1",
		Conn:       &websocket.Conn{},
	})
	require.NoError(t, err)

	disconnectResp, err := s.DisconnectClient(ctx, &DisconnectClientParams{
		ChannelId: adminResp.ChannelId,
		ClientId:  adminResp.ClientId,
	})
	require.NoError(t, err)
	assert.True(t, disconnectResp.Cleanup.Cleaned)
	assert.Len(t, disconnectResp.Cleanup.RejectedPendingConns, 1)
	assert.Empty(t, s.GetRooms(ctx))
}

func TestGhostCannotInteract(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	ghost := participantCred("auditor", "s1")
	ghost.Ghost = true
	ghostResp := join(t, s, ghost, "room1")
	params := SessionParams{ChannelId: ghostResp.ChannelId, ClientId: ghostResp.ClientId}

	_, err := s.SendChat(ctx, &SendChatParams{SessionParams: params, Content: "hi"})
	assert.ErrorIs(t, err, ErrGhostForbidden)

	_, err = s.SendReaction(ctx, &SendReactionParams{SessionParams: params, Kind: "emoji", Value: "👍"})
	assert.ErrorIs(t, err, ErrGhostForbidden)

	_, err = s.SetHandRaised(ctx, &SetHandRaisedParams{SessionParams: params, Raised: true})
	assert.ErrorIs(t, err, ErrGhostForbidden)
}

func TestSendChatValidation(t *testing.T) {
	s, _, _ := newTestService(t, &Config{ChatMaxLength: 10})
	ctx := context.Background()

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")
	params := SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId}

	_, err := s.SendChat(ctx, &SendChatParams{SessionParams: params, Content: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.SendChat(ctx, &SendChatParams{SessionParams: params, Content: "this is way too long"})
	assert.ErrorIs(t, err, ErrValidation)

	chatResp, err := s.SendChat(ctx, &SendChatParams{SessionParams: params, Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", chatResp.Message.Content)
	assert.NotEmpty(t, chatResp.Message.Id)
}

func TestSendReactionValidation(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")
	params := SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId}

	tests := []struct {
		name    string
		kind    string
		value   string
		wantErr bool
	}{
		{"allowed emoji", "emoji", "👍", false},
		{"unknown emoji", "emoji", "🦄", true},
		{"allowed asset", "asset", "/reactions/party.png", false},
		{"traversal", "asset", "/reactions/../../etc/passwd", true},
		{"encoded traversal", "asset", "/reactions/%2e%2e/secret.png", true},
		{"bad extension", "asset", "/reactions/party.exe", true},
		{"outside prefix", "asset", "/avatars/party.png", true},
		{"unknown kind", "sticker", "party", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SendReaction(ctx, &SendReactionParams{
				SessionParams: params,
				Kind:          tt.kind,
				Value:         tt.value,
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRenameUserAppliesToAllSessions(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")
	join(t, s, participantCred("user-1", "laptop"), "room1")
	join(t, s, participantCred("user-1", "phone"), "room1")

	renameResp, err := s.RenameUser(ctx, &RenameUserParams{
		SessionParams: SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId},
		UserKey:       "user-1",
		NewName:       "Alice",
	})
	require.NoError(t, err)
	assert.Len(t, renameResp.Updates, 2)
	for _, update := range renameResp.Updates {
		assert.Equal(t, "Alice", update.DisplayName)
	}

	// The override survives for later sessions of the same user key.
	lateResp := join(t, s, participantCred("user-1", "tablet"), "room1")
	assert.Equal(t, "Alice", lateResp.Joined.DisplayName)
}

func TestRenameRequiresAdmin(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")

	_, err := s.RenameUser(context.Background(), &RenameUserParams{
		SessionParams: SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId},
		UserKey:       "user-1",
		NewName:       "Alice",
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestTransportCreatedOnce(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")
	params := SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId}

	_, err := s.CreateTransport(ctx, &CreateTransportParams{SessionParams: params, Direction: TransportProducer})
	require.NoError(t, err)

	_, err = s.CreateTransport(ctx, &CreateTransportParams{SessionParams: params, Direction: TransportProducer})
	assert.ErrorIs(t, err, ErrTransportExists)

	// The consumer direction is independent.
	_, err = s.CreateTransport(ctx, &CreateTransportParams{SessionParams: params, Direction: TransportConsumer})
	assert.NoError(t, err)
}

func TestConnectTransportNeverCreated(t *testing.T) {
	s, _, _ := newTestService(t, nil)

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")

	err := s.ConnectTransport(context.Background(), &ConnectTransportParams{
		SessionParams: SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId},
		Direction:     TransportProducer,
	})
	assert.ErrorIs(t, err, ErrTransportNotFound)
}

func TestProduceReplacesPreviousProducer(t *testing.T) {
	s, w, _ := newTestService(t, nil)
	ctx := context.Background()

	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")
	params := SessionParams{ChannelId: joinResp.ChannelId, ClientId: joinResp.ClientId}

	_, err := s.CreateTransport(ctx, &CreateTransportParams{SessionParams: params, Direction: TransportProducer})
	require.NoError(t, err)

	first, err := s.Produce(ctx, &ProduceParams{SessionParams: params, Kind: domain.MediaKindAudio})
	require.NoError(t, err)

	second, err := s.Produce(ctx, &ProduceParams{SessionParams: params, Kind: domain.MediaKindAudio})
	require.NoError(t, err)
	assert.NotEqual(t, first.ProducerId, second.ProducerId)
	assert.Contains(t, w.closedProducers, first.ProducerId)
}

func TestMuteAllSkipsAdmins(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")
	userResp := join(t, s, participantCred("user-1", "s1"), "room1")

	adminParams := SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId}
	userParams := SessionParams{ChannelId: userResp.ChannelId, ClientId: userResp.ClientId}

	for _, p := range []SessionParams{adminParams, userParams} {
		_, err := s.CreateTransport(ctx, &CreateTransportParams{SessionParams: p, Direction: TransportProducer})
		require.NoError(t, err)
		_, err = s.Produce(ctx, &ProduceParams{SessionParams: p, Kind: domain.MediaKindAudio})
		require.NoError(t, err)
	}

	bulkResp, err := s.MuteAll(ctx, &BulkCloseParams{SessionParams: adminParams})
	require.NoError(t, err)
	assert.Equal(t, 1, bulkResp.Count)
	require.Len(t, bulkResp.Closed, 1)
	assert.Equal(t, userResp.ClientId, bulkResp.Closed[0].OwnerUserId)
}

func TestConcurrentProduceAndMuteAll(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")
	userResp := join(t, s, participantCred("user-1", "s1"), "room1")

	adminParams := SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId}
	userParams := SessionParams{ChannelId: userResp.ChannelId, ClientId: userResp.ClientId}

	_, err := s.CreateTransport(ctx, &CreateTransportParams{SessionParams: userParams, Direction: TransportProducer})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := s.Produce(ctx, &ProduceParams{SessionParams: userParams, Kind: domain.MediaKindAudio})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := s.MuteAll(ctx, &BulkCloseParams{SessionParams: adminParams})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	// At most the final producer survives the interleaving.
	finalResp, err := s.MuteAll(ctx, &BulkCloseParams{SessionParams: adminParams})
	require.NoError(t, err)
	assert.LessOrEqual(t, finalResp.Count, 1)
}

func TestJoinPendingOnDestroyedRoom(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")
	room, ok := s.getRoom(adminResp.ChannelId)
	require.True(t, ok)

	_, err := s.DisconnectClient(ctx, &DisconnectClientParams{
		ChannelId: adminResp.ChannelId,
		ClientId:  adminResp.ClientId,
	})
	require.NoError(t, err)

	// A joiner racing the destruction resolved the room before it was
	// deregistered; parking it there would strand it forever.
	guest := participantCred("guest:abc", "sg")
	_, err = s.joinPending(ctx, room, &JoinRoomParams{
		Credential: guest,
		RoomId:     "room1",
		Conn:       &websocket.Conn{},
	})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = s.connRepo.GetConn(pendingConnId(adminResp.ChannelId, "guest:abc"))
	assert.Error(t, err)
	assert.Empty(t, room.PendingList())
}

func TestRenameMissingUserLeavesNoOverride(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	adminResp := join(t, s, adminCred("host"), "room1")

	_, err := s.RenameUser(ctx, &RenameUserParams{
		SessionParams: SessionParams{ChannelId: adminResp.ChannelId, ClientId: adminResp.ClientId},
		UserKey:       "user-1",
		NewName:       "Alice",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)

	// The failed rename left no override behind.
	joinResp := join(t, s, participantCred("user-1", "s1"), "room1")
	assert.Equal(t, "user-1", joinResp.Joined.DisplayName)
}
