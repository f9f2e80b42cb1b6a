package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
	"github.com/meetsync/sfu-server/internal/service/sfu"
)

type EmptyInput struct{}

func (c *controller) sessionParams(ctx context.Context) sfu.SessionParams {
	st := c.sessionFromCtx(ctx).state()

	return sfu.SessionParams{
		ChannelId: st.channelId,
		ClientId:  st.clientId,
	}
}

type JoinInput struct {
	RoomId string `json:"room_id" validate:"required,max=128"`
}

func (c *controller) handleJoin(ctx context.Context, conn *websocket.Conn, input JoinInput) error {
	session := c.sessionFromCtx(ctx)
	st := session.state()
	if st.clientId != "" || st.pendingUserKey != "" {
		return sfu.ErrAlreadyJoined
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	joinResp, err := c.sfuService.JoinRoom(ctx, &sfu.JoinRoomParams{
		Credential:    st.credential,
		RoomId:        input.RoomId,
		ConnSessionId: st.connSessionId,
		ConnId:        st.connId,
		Conn:          conn,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	return c.finishJoin(ctx, conn, session, joinResp)
}

type JoinByLinkInput struct {
	Slug string `json:"slug" validate:"required,max=64"`
}

func (c *controller) handleJoinByLink(ctx context.Context, conn *websocket.Conn, input JoinByLinkInput) error {
	session := c.sessionFromCtx(ctx)
	st := session.state()
	if st.clientId != "" || st.pendingUserKey != "" {
		return sfu.ErrAlreadyJoined
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	joinResp, err := c.sfuService.JoinByLink(ctx, &sfu.JoinByLinkParams{
		Credential:    st.credential,
		LinkSlug:      input.Slug,
		ConnSessionId: st.connSessionId,
		ConnId:        st.connId,
		Conn:          conn,
	})
	if err != nil {
		return fmt.Errorf("failed to join by link: %w", err)
	}

	return c.finishJoin(ctx, conn, session, joinResp)
}

func (c *controller) finishJoin(ctx context.Context, conn *websocket.Conn, session *connSession, joinResp sfu.JoinRoomResponse) error {
	if joinResp.Pending {
		session.bindPending(joinResp.ChannelId, joinResp.PendingInfo.UserKey)

		if err := c.writeToConn(ctx, conn, &Output{
			Type:    "joinPending",
			Payload: joinResp.PendingInfo,
		}); err != nil {
			return err
		}
		c.broadcast(ctx, joinResp.AdminConns, &Output{
			Type:    "joinPending",
			Payload: joinResp.PendingInfo,
		})

		return nil
	}

	session.bindActive(joinResp.ChannelId, joinResp.ClientId)

	if err := c.writeToConn(ctx, conn, &Output{
		Type: "joined",
		Payload: map[string]any{
			"client_id":  joinResp.ClientId,
			"room_state": joinResp.RoomState,
		},
	}); err != nil {
		return err
	}

	c.broadcast(ctx, joinResp.Conns, &Output{
		Type: "userJoined",
		Payload: map[string]any{
			"user": joinResp.Joined,
		},
	})
	c.broadcastAttendeeCount(ctx, joinResp.AttendeeCount)

	return nil
}

func (c *controller) handleGetRouterRtpCapabilities(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	params := c.sessionParams(ctx)

	capabilities, err := c.sfuService.GetRouterRtpCapabilities(ctx, &params)
	if err != nil {
		return fmt.Errorf("failed to get router rtp capabilities: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{
		Type:    "routerRtpCapabilities",
		Payload: capabilities,
	})
}

func (c *controller) handleCreateProducerTransport(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	return c.createTransport(ctx, conn, sfu.TransportProducer, "producerTransportCreated")
}

func (c *controller) handleCreateConsumerTransport(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	return c.createTransport(ctx, conn, sfu.TransportConsumer, "consumerTransportCreated")
}

func (c *controller) createTransport(ctx context.Context, conn *websocket.Conn, direction sfu.TransportDirection, outputType string) error {
	info, err := c.sfuService.CreateTransport(ctx, &sfu.CreateTransportParams{
		SessionParams: c.sessionParams(ctx),
		Direction:     direction,
	})
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{
		Type:    outputType,
		Payload: info,
	})
}

type ConnectTransportInput struct {
	DtlsParameters json.RawMessage `json:"dtls_parameters"`
}

func (c *controller) handleConnectProducerTransport(ctx context.Context, conn *websocket.Conn, input ConnectTransportInput) error {
	return c.connectTransport(ctx, conn, sfu.TransportProducer, "producerTransportConnected", input)
}

func (c *controller) handleConnectConsumerTransport(ctx context.Context, conn *websocket.Conn, input ConnectTransportInput) error {
	return c.connectTransport(ctx, conn, sfu.TransportConsumer, "consumerTransportConnected", input)
}

func (c *controller) connectTransport(ctx context.Context, conn *websocket.Conn, direction sfu.TransportDirection, outputType string, input ConnectTransportInput) error {
	if err := c.sfuService.ConnectTransport(ctx, &sfu.ConnectTransportParams{
		SessionParams:  c.sessionParams(ctx),
		Direction:      direction,
		DtlsParameters: input.DtlsParameters,
	}); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{Type: outputType, Payload: nil})
}

type ProduceInput struct {
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtp_parameters"`
}

func (c *controller) handleProduce(ctx context.Context, conn *websocket.Conn, input ProduceInput) error {
	produceResp, err := c.sfuService.Produce(ctx, &sfu.ProduceParams{
		SessionParams: c.sessionParams(ctx),
		Kind:          domain.MediaKind(input.Kind),
		RtpParameters: input.RtpParameters,
	})
	if err != nil {
		return fmt.Errorf("failed to produce: %w", err)
	}

	if err := c.writeToConn(ctx, conn, &Output{
		Type: "produced",
		Payload: map[string]any{
			"producer_id": produceResp.ProducerId,
			"kind":        input.Kind,
		},
	}); err != nil {
		return err
	}

	c.broadcastFeed(ctx, produceResp.Feed)

	return nil
}

type CloseProducerInput struct {
	ProducerId string `json:"producer_id"`
}

func (c *controller) handleCloseProducer(ctx context.Context, conn *websocket.Conn, input CloseProducerInput) error {
	closeResp, err := c.sfuService.CloseProducer(ctx, &sfu.CloseProducerParams{
		SessionParams: c.sessionParams(ctx),
		ProducerId:    input.ProducerId,
	})
	if err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}

	if err := c.writeToConn(ctx, conn, &Output{
		Type:    "producerClosed",
		Payload: closeResp.Closed,
	}); err != nil {
		return err
	}
	c.broadcast(ctx, closeResp.Conns, &Output{
		Type:    "producerClosed",
		Payload: closeResp.Closed,
	})
	c.broadcastFeed(ctx, closeResp.Feed)

	return nil
}

type ConsumeInput struct {
	ProducerId      string          `json:"producer_id"`
	RtpCapabilities json.RawMessage `json:"rtp_capabilities"`
}

func (c *controller) handleConsume(ctx context.Context, conn *websocket.Conn, input ConsumeInput) error {
	info, err := c.sfuService.Consume(ctx, &sfu.ConsumeParams{
		SessionParams:   c.sessionParams(ctx),
		ProducerId:      input.ProducerId,
		RtpCapabilities: input.RtpCapabilities,
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{
		Type:    "consumed",
		Payload: info,
	})
}

type SendChatInput struct {
	Content string `json:"content"`
}

func (c *controller) handleSendChat(ctx context.Context, conn *websocket.Conn, input SendChatInput) error {
	chatResp, err := c.sfuService.SendChat(ctx, &sfu.SendChatParams{
		SessionParams: c.sessionParams(ctx),
		Content:       input.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to send chat: %w", err)
	}

	output := &Output{
		Type:    "chatMessage",
		Payload: chatResp.Message,
	}
	if err := c.writeToConn(ctx, conn, output); err != nil {
		return err
	}
	c.broadcast(ctx, chatResp.Conns, output)

	return nil
}

type SendReactionInput struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (c *controller) handleSendReaction(ctx context.Context, conn *websocket.Conn, input SendReactionInput) error {
	reactionResp, err := c.sfuService.SendReaction(ctx, &sfu.SendReactionParams{
		SessionParams: c.sessionParams(ctx),
		Kind:          input.Kind,
		Value:         input.Value,
	})
	if err != nil {
		return fmt.Errorf("failed to send reaction: %w", err)
	}

	c.broadcast(ctx, reactionResp.Conns, &Output{
		Type:    "reaction",
		Payload: reactionResp.Reaction,
	})

	return nil
}

type SetHandRaisedInput struct {
	Raised bool `json:"raised"`
}

func (c *controller) handleSetHandRaised(ctx context.Context, conn *websocket.Conn, input SetHandRaisedInput) error {
	handResp, err := c.sfuService.SetHandRaised(ctx, &sfu.SetHandRaisedParams{
		SessionParams: c.sessionParams(ctx),
		Raised:        input.Raised,
	})
	if err != nil {
		return fmt.Errorf("failed to set hand raised: %w", err)
	}

	c.broadcast(ctx, handResp.Conns, &Output{
		Type: "handRaised",
		Payload: map[string]any{
			"client_id": handResp.ClientId,
			"raised":    handResp.Raised,
		},
	})

	return nil
}
