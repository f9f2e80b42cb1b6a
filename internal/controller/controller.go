package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/service/sfu"
	"github.com/meetsync/sfu-server/internal/worker"
	"github.com/meetsync/sfu-server/pkg/validator"
	"github.com/meetsync/sfu-server/pkg/wsrouter"
)

type iSfuService interface {
	ParseCredential(token string) (*sfu.Credential, error)
	JoinRoom(context.Context, *sfu.JoinRoomParams) (sfu.JoinRoomResponse, error)
	JoinByLink(context.Context, *sfu.JoinByLinkParams) (sfu.JoinRoomResponse, error)
	DisconnectClient(context.Context, *sfu.DisconnectClientParams) (sfu.DisconnectClientResponse, error)
	DisconnectPending(ctx context.Context, channelId, userKey string)
	SetPendingTimeoutHandler(func(conn *websocket.Conn, channelId string))

	GetRouterRtpCapabilities(context.Context, *sfu.SessionParams) (json.RawMessage, error)
	CreateTransport(context.Context, *sfu.CreateTransportParams) (worker.TransportInfo, error)
	ConnectTransport(context.Context, *sfu.ConnectTransportParams) error
	Produce(context.Context, *sfu.ProduceParams) (sfu.ProduceResponse, error)
	CloseProducer(context.Context, *sfu.CloseProducerParams) (sfu.CloseProducerResponse, error)
	Consume(context.Context, *sfu.ConsumeParams) (worker.ConsumerInfo, error)

	SendChat(context.Context, *sfu.SendChatParams) (sfu.SendChatResponse, error)
	SendReaction(context.Context, *sfu.SendReactionParams) (sfu.SendReactionResponse, error)
	SetHandRaised(context.Context, *sfu.SetHandRaisedParams) (sfu.SetHandRaisedResponse, error)

	KickUser(context.Context, *sfu.KickUserParams) (sfu.KickUserResponse, error)
	CloseRemoteProducer(context.Context, *sfu.CloseRemoteProducerParams) (sfu.CloseRemoteProducerResponse, error)
	MuteAll(context.Context, *sfu.BulkCloseParams) (sfu.BulkCloseResponse, error)
	CloseAllVideo(context.Context, *sfu.BulkCloseParams) (sfu.BulkCloseResponse, error)
	RedirectUser(context.Context, *sfu.RedirectUserParams) (sfu.RedirectUserResponse, error)
	AdmitUser(context.Context, *sfu.AdmitUserParams) (sfu.AdmitUserResponse, error)
	RejectUser(context.Context, *sfu.RejectUserParams) (sfu.RejectUserResponse, error)
	RenameUser(context.Context, *sfu.RenameUserParams) (sfu.RenameUserResponse, error)
	UpdateWebinarConfig(context.Context, *sfu.UpdateWebinarConfigParams) (sfu.UpdateWebinarConfigResponse, error)

	GetRooms(ctx context.Context) []sfu.RoomInfo
	ResolveLink(ctx context.Context, slug string) (sfu.LinkInfo, error)
}

type iMinutesService interface {
	PopMinutes(ctx context.Context, channelId string) ([]byte, error)
	PopTranscript(ctx context.Context, channelId string) (string, error)
}

type controller struct {
	sfuService     iSfuService
	minutesService iMinutesService
	upgrader       websocket.Upgrader
	validate       *validator.Validator
	wsmux          *wsrouter.WSRouter
	adminKey       string
	logger         *slog.Logger

	// sessions lets handlers running on one connection rebind another
	// connection's session (admission, rejection, timeout).
	sessionsMu sync.RWMutex
	sessions   map[*websocket.Conn]*connSession
}

func NewController(sfuService iSfuService, minutesService iMinutesService, adminKey string, logger *slog.Logger) *controller {
	c := &controller{
		sfuService:     sfuService,
		minutesService: minutesService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.New(),
		adminKey: adminKey,
		logger:   logger,
		sessions: make(map[*websocket.Conn]*connSession),
	}
	c.wsmux = c.getWSRouter()
	c.sfuService.SetPendingTimeoutHandler(c.handlePendingTimeout)

	return c
}
