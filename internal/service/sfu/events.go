package sfu

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var allowedEmojis = map[string]struct{}{
	"👍": {},
	"👏": {},
	"❤️": {},
	"😂": {},
	"😮": {},
	"🎉": {},
}

const reactionAssetPrefix = "/reactions/"

var allowedAssetExtensions = map[string]struct{}{
	".png":  {},
	".gif":  {},
	".webp": {},
	".svg":  {},
}

type SendChatParams struct {
	SessionParams
	Content string
}

type SendChatResponse struct {
	Message ChatMessage
	Conns   []*websocket.Conn
}

// SendChat validates and fans a chat message out to everyone but the sender.
func (s *service) SendChat(ctx context.Context, params *SendChatParams) (SendChatResponse, error) {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return SendChatResponse{}, err
	}
	if client.IsGhost {
		return SendChatResponse{}, ErrGhostForbidden
	}

	content := strings.TrimSpace(params.Content)
	if content == "" {
		return SendChatResponse{}, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if len(content) > s.cfg.ChatMaxLength {
		return SendChatResponse{}, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, s.cfg.ChatMaxLength)
	}

	displayName, ok := room.ClientDisplayName(client.Id)
	if !ok {
		displayName = client.DisplayName
	}

	return SendChatResponse{
		Message: ChatMessage{
			Id:          uuid.NewString(),
			SenderId:    client.Id,
			DisplayName: displayName,
			Content:     content,
			SentAt:      time.Now().UnixMilli(),
		},
		Conns: s.getConns(room, client.Id),
	}, nil
}

type SendReactionParams struct {
	SessionParams
	Kind  string
	Value string
}

type SendReactionResponse struct {
	Reaction Reaction
	Conns    []*websocket.Conn
}

func (s *service) SendReaction(ctx context.Context, params *SendReactionParams) (SendReactionResponse, error) {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return SendReactionResponse{}, err
	}
	if client.IsGhost {
		return SendReactionResponse{}, ErrGhostForbidden
	}

	switch params.Kind {
	case "emoji":
		if _, ok := allowedEmojis[params.Value]; !ok {
			return SendReactionResponse{}, fmt.Errorf("%w: emoji not allowed", ErrValidation)
		}
	case "asset":
		if err := validateAssetPath(params.Value); err != nil {
			return SendReactionResponse{}, err
		}
	default:
		return SendReactionResponse{}, fmt.Errorf("%w: unknown reaction kind %q", ErrValidation, params.Kind)
	}

	return SendReactionResponse{
		Reaction: Reaction{
			SenderId: client.Id,
			Kind:     params.Kind,
			Value:    params.Value,
		},
		Conns: s.getConns(room, client.Id),
	}, nil
}

// validateAssetPath accepts only allow-listed file types under the reactions
// prefix, with traversal sequences rejected after URL-decoding.
func validateAssetPath(value string) error {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return fmt.Errorf("%w: malformed asset path", ErrValidation)
	}
	if !strings.HasPrefix(decoded, reactionAssetPrefix) {
		return fmt.Errorf("%w: asset path must start with %s", ErrValidation, reactionAssetPrefix)
	}
	if strings.Contains(decoded, "..") {
		return fmt.Errorf("%w: asset path contains traversal", ErrValidation)
	}
	if _, ok := allowedAssetExtensions[strings.ToLower(path.Ext(decoded))]; !ok {
		return fmt.Errorf("%w: asset extension not allowed", ErrValidation)
	}

	return nil
}

type SetHandRaisedParams struct {
	SessionParams
	Raised bool
}

type SetHandRaisedResponse struct {
	ClientId string
	Raised   bool
	// Hand-raise is broadcast to the whole room, sender included.
	Conns []*websocket.Conn
}

func (s *service) SetHandRaised(ctx context.Context, params *SetHandRaisedParams) (SetHandRaisedResponse, error) {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return SetHandRaisedResponse{}, err
	}
	if client.IsGhost {
		return SetHandRaisedResponse{}, ErrGhostForbidden
	}

	room.SetHandRaised(client.Id, params.Raised)

	return SetHandRaisedResponse{
		ClientId: client.Id,
		Raised:   params.Raised,
		Conns:    s.getConns(room),
	}, nil
}
