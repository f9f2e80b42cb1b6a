package controller

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.OnError(func(ctx context.Context, conn *websocket.Conn, messageType string, err error) {
		c.logger.DebugContext(ctx, "handler error", "type", messageType, "error", err)
		if err := c.writeError(ctx, conn, err); err != nil {
			c.logger.DebugContext(ctx, "failed to write error", "error", err)
		}
	})

	// session
	wsrouter.Handle(mux, "join", c.handleJoin)
	wsrouter.Handle(mux, "joinByLink", c.handleJoinByLink)

	// media
	wsrouter.Handle(mux, "getRouterRtpCapabilities", c.handleGetRouterRtpCapabilities)
	wsrouter.Handle(mux, "createProducerTransport", c.handleCreateProducerTransport)
	wsrouter.Handle(mux, "createConsumerTransport", c.handleCreateConsumerTransport)
	wsrouter.Handle(mux, "connectProducerTransport", c.handleConnectProducerTransport)
	wsrouter.Handle(mux, "connectConsumerTransport", c.handleConnectConsumerTransport)
	wsrouter.Handle(mux, "produce", c.handleProduce)
	wsrouter.Handle(mux, "closeProducer", c.handleCloseProducer)
	wsrouter.Handle(mux, "consume", c.handleConsume)

	// events
	wsrouter.Handle(mux, "sendChat", c.handleSendChat)
	wsrouter.Handle(mux, "sendReaction", c.handleSendReaction)
	wsrouter.Handle(mux, "setHandRaised", c.handleSetHandRaised)

	// admin
	wsrouter.Handle(mux, "updateDisplayName", c.handleUpdateDisplayName)
	wsrouter.Handle(mux, "kickUser", c.handleKickUser)
	wsrouter.Handle(mux, "closeRemoteProducer", c.handleCloseRemoteProducer)
	wsrouter.Handle(mux, "muteAll", c.handleMuteAll)
	wsrouter.Handle(mux, "closeAllVideo", c.handleCloseAllVideo)
	wsrouter.Handle(mux, "redirectUser", c.handleRedirectUser)
	wsrouter.Handle(mux, "admitUser", c.handleAdmitUser)
	wsrouter.Handle(mux, "rejectUser", c.handleRejectUser)
	wsrouter.Handle(mux, "updateWebinarConfig", c.handleUpdateWebinarConfig)
	wsrouter.Handle(mux, "getRooms", c.handleGetRooms)

	return mux
}
