package sfu

import (
	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
)

type ClientInfo struct {
	Id          string      `json:"id"`
	UserKey     string      `json:"user_key"`
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role"`
	IsGhost     bool        `json:"is_ghost"`
	HandRaised  bool        `json:"hand_raised"`
}

type PendingInfo struct {
	UserKey     string `json:"user_key"`
	DisplayName string `json:"display_name"`
}

type RoomState struct {
	RoomId    string                `json:"room_id"`
	ChannelId string                `json:"channel_id"`
	Clients   []ClientInfo          `json:"clients"`
	Pending   []PendingInfo         `json:"pending,omitempty"`
	Webinar   *domain.WebinarConfig `json:"webinar,omitempty"`
}

type RoomInfo struct {
	ChannelId        string `json:"channel_id"`
	ParticipantCount int    `json:"participant_count"`
}

type ChatMessage struct {
	Id          string `json:"id"`
	SenderId    string `json:"sender_id"`
	DisplayName string `json:"display_name"`
	Content     string `json:"content"`
	SentAt      int64  `json:"sent_at"`
}

type Reaction struct {
	SenderId string `json:"sender_id"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
}

type ProducerClosed struct {
	ProducerId  string `json:"producer_id"`
	OwnerUserId string `json:"owner_user_id"`
}

// FeedEvent carries a changed webinar feed snapshot and the attendee
// connections it must reach.
type FeedEvent struct {
	Snapshot *domain.FeedSnapshot
	Conns    []*websocket.Conn
}

// AttendeeCountEvent is broadcast whenever the attendee count of a webinar
// room changes.
type AttendeeCountEvent struct {
	Count int
	Conns []*websocket.Conn
}

func clientInfo(room *domain.Room, c *domain.Client) ClientInfo {
	// Renames land through the room, so the name is read back through it; the
	// direct field is only touched once the client has left the room.
	displayName, ok := room.ClientDisplayName(c.Id)
	if !ok {
		displayName = c.DisplayName
	}

	return ClientInfo{
		Id:          c.Id,
		UserKey:     c.UserKey,
		DisplayName: displayName,
		Role:        c.Role,
		IsGhost:     c.IsGhost,
		HandRaised:  room.IsHandRaised(c.Id),
	}
}

func (s *service) roomState(room *domain.Room, includePending bool) RoomState {
	clients := room.Clients()
	state := RoomState{
		RoomId:    room.Id,
		ChannelId: room.ChannelId,
		Clients:   make([]ClientInfo, 0, len(clients)),
		Webinar:   room.WebinarConfig(),
	}
	for _, c := range clients {
		state.Clients = append(state.Clients, clientInfo(room, c))
	}
	if includePending {
		for _, p := range room.PendingList() {
			state.Pending = append(state.Pending, PendingInfo{UserKey: p.UserKey, DisplayName: p.DisplayName})
		}
	}

	return state
}
