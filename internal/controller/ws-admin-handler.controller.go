package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
	"github.com/meetsync/sfu-server/internal/service/sfu"
)

type UpdateDisplayNameInput struct {
	UserKey string `json:"user_key" validate:"required"`
	NewName string `json:"new_name" validate:"required"`
}

func (c *controller) handleUpdateDisplayName(ctx context.Context, conn *websocket.Conn, input UpdateDisplayNameInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	renameResp, err := c.sfuService.RenameUser(ctx, &sfu.RenameUserParams{
		SessionParams: c.sessionParams(ctx),
		UserKey:       input.UserKey,
		NewName:       input.NewName,
	})
	if err != nil {
		return fmt.Errorf("failed to rename user: %w", err)
	}

	for _, update := range renameResp.Updates {
		c.broadcast(ctx, renameResp.Conns, &Output{
			Type:    "displayNameUpdated",
			Payload: update,
		})
	}

	return nil
}

type KickUserInput struct {
	UserId string `json:"user_id" validate:"required"`
}

func (c *controller) handleKickUser(ctx context.Context, conn *websocket.Conn, input KickUserInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	kickResp, err := c.sfuService.KickUser(ctx, &sfu.KickUserParams{
		SessionParams: c.sessionParams(ctx),
		TargetId:      input.UserId,
	})
	if err != nil {
		return fmt.Errorf("failed to kick user: %w", err)
	}

	if err := c.writeToConn(ctx, kickResp.TargetConn, &Output{
		Type:    "kicked",
		Payload: nil,
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to write kicked", "error", err)
	}
	// Removal and the userLeft broadcast happen through the target's own
	// disconnect path once the close lands.
	closeConn(kickResp.TargetConn, 4001, "kicked")

	return nil
}

type CloseRemoteProducerInput struct {
	ProducerId string `json:"producer_id" validate:"required"`
}

func (c *controller) handleCloseRemoteProducer(ctx context.Context, conn *websocket.Conn, input CloseRemoteProducerInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	closeResp, err := c.sfuService.CloseRemoteProducer(ctx, &sfu.CloseRemoteProducerParams{
		SessionParams: c.sessionParams(ctx),
		ProducerId:    input.ProducerId,
	})
	if err != nil {
		return fmt.Errorf("failed to close remote producer: %w", err)
	}

	c.broadcast(ctx, closeResp.Conns, &Output{
		Type:    "producerClosed",
		Payload: closeResp.Closed,
	})
	c.broadcastFeed(ctx, closeResp.Feed)

	return nil
}

func (c *controller) handleMuteAll(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	bulkResp, err := c.sfuService.MuteAll(ctx, &sfu.BulkCloseParams{
		SessionParams: c.sessionParams(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to mute all: %w", err)
	}

	return c.broadcastBulkClose(ctx, bulkResp)
}

func (c *controller) handleCloseAllVideo(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	bulkResp, err := c.sfuService.CloseAllVideo(ctx, &sfu.BulkCloseParams{
		SessionParams: c.sessionParams(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to close all video: %w", err)
	}

	return c.broadcastBulkClose(ctx, bulkResp)
}

func (c *controller) broadcastBulkClose(ctx context.Context, bulkResp sfu.BulkCloseResponse) error {
	for _, closed := range bulkResp.Closed {
		c.broadcast(ctx, bulkResp.Conns, &Output{
			Type:    "producerClosed",
			Payload: closed,
		})
	}
	c.broadcastFeed(ctx, bulkResp.Feed)

	return nil
}

type RedirectUserInput struct {
	UserId    string `json:"user_id" validate:"required"`
	NewRoomId string `json:"new_room_id" validate:"required"`
}

func (c *controller) handleRedirectUser(ctx context.Context, conn *websocket.Conn, input RedirectUserInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	redirectResp, err := c.sfuService.RedirectUser(ctx, &sfu.RedirectUserParams{
		SessionParams: c.sessionParams(ctx),
		TargetId:      input.UserId,
		NewRoomId:     input.NewRoomId,
	})
	if err != nil {
		return fmt.Errorf("failed to redirect user: %w", err)
	}

	return c.writeToConn(ctx, redirectResp.TargetConn, &Output{
		Type: "redirect",
		Payload: map[string]any{
			"new_room_id": redirectResp.NewRoomId,
		},
	})
}

type AdmitUserInput struct {
	UserKey string `json:"user_key" validate:"required"`
}

func (c *controller) handleAdmitUser(ctx context.Context, conn *websocket.Conn, input AdmitUserInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	st := c.sessionFromCtx(ctx).state()
	admitResp, err := c.sfuService.AdmitUser(ctx, &sfu.AdmitUserParams{
		SessionParams: sfu.SessionParams{ChannelId: st.channelId, ClientId: st.clientId},
		UserKey:       input.UserKey,
	})
	if err != nil {
		return fmt.Errorf("failed to admit user: %w", err)
	}

	if targetSession := c.sessionByConn(admitResp.TargetConn); targetSession != nil {
		targetSession.bindActive(st.channelId, admitResp.Admitted.Id)
	}

	if err := c.writeToConn(ctx, admitResp.TargetConn, &Output{
		Type: "joinApproved",
		Payload: map[string]any{
			"client_id":  admitResp.Admitted.Id,
			"room_state": admitResp.RoomState,
		},
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to write join approved", "error", err)
	}

	c.broadcast(ctx, admitResp.Conns, &Output{
		Type: "userJoined",
		Payload: map[string]any{
			"user": admitResp.Admitted,
		},
	})
	c.broadcast(ctx, admitResp.AdminConns, &Output{
		Type: "userAdmitted",
		Payload: map[string]any{
			"user_key": input.UserKey,
		},
	})
	c.broadcastAttendeeCount(ctx, admitResp.AttendeeCount)

	return nil
}

type RejectUserInput struct {
	UserKey string `json:"user_key" validate:"required"`
}

func (c *controller) handleRejectUser(ctx context.Context, conn *websocket.Conn, input RejectUserInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	rejectResp, err := c.sfuService.RejectUser(ctx, &sfu.RejectUserParams{
		SessionParams: c.sessionParams(ctx),
		UserKey:       input.UserKey,
	})
	if err != nil {
		return fmt.Errorf("failed to reject user: %w", err)
	}

	if rejectResp.TargetConn != nil {
		if targetSession := c.sessionByConn(rejectResp.TargetConn); targetSession != nil {
			targetSession.clearPending()
		}
		if err := c.writeToConn(ctx, rejectResp.TargetConn, &Output{
			Type:    "joinRejected",
			Payload: map[string]any{"reason": "rejected"},
		}); err != nil {
			c.logger.DebugContext(ctx, "failed to write join rejected", "error", err)
		}
		closeConn(rejectResp.TargetConn, 4003, "rejected")
	}

	c.broadcast(ctx, rejectResp.AdminConns, &Output{
		Type:    "userRejected",
		Payload: rejectResp.Rejected,
	})

	return nil
}

type UpdateWebinarConfigInput struct {
	MaxAttendees   int  `json:"max_attendees" validate:"gte=0"`
	PublicAccess   bool `json:"public_access"`
	RegenerateLink bool `json:"regenerate_link"`
}

func (c *controller) handleUpdateWebinarConfig(ctx context.Context, conn *websocket.Conn, input UpdateWebinarConfigInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", sfu.ErrValidation, validationErrors)
	}

	configResp, err := c.sfuService.UpdateWebinarConfig(ctx, &sfu.UpdateWebinarConfigParams{
		SessionParams:  c.sessionParams(ctx),
		MaxAttendees:   input.MaxAttendees,
		PublicAccess:   input.PublicAccess,
		RegenerateLink: input.RegenerateLink,
	})
	if err != nil {
		return fmt.Errorf("failed to update webinar config: %w", err)
	}

	c.broadcast(ctx, configResp.Conns, &Output{
		Type:    "webinar:configChanged",
		Payload: configResp.Config,
	})

	return nil
}

func (c *controller) handleGetRooms(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	st := c.sessionFromCtx(ctx).state()
	if st.credential == nil || st.credential.Role != domain.RoleAdmin {
		return sfu.ErrPermissionDenied
	}

	return c.writeToConn(ctx, conn, &Output{
		Type: "rooms",
		Payload: map[string]any{
			"rooms": c.sfuService.GetRooms(ctx),
		},
	})
}
