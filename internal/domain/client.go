package domain

import "time"

type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
	RoleAttendee    Role = "attendee"
)

type MediaKind string

const (
	MediaKindAudio  MediaKind = "audio"
	MediaKindVideo  MediaKind = "video"
	MediaKindScreen MediaKind = "screen"
)

// Client is one active participant session. A single user key may hold
// multiple concurrent sessions (multi-device), each with its own client id.
type Client struct {
	Id          string `json:"id"`
	UserKey     string `json:"user_key"`
	SessionId   string `json:"session_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	IsGhost     bool   `json:"is_ghost"`

	// Media bindings and the display name are mutated after the client is
	// registered; all access goes through the owning Room's methods so the
	// room mutex guards them.
	ProducerTransportId string               `json:"-"`
	ConsumerTransportId string               `json:"-"`
	Producers           map[MediaKind]string `json:"-"`
}

func (c *Client) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// PendingClient is a joiner held in the waiting room until an admin admits or
// rejects it.
type PendingClient struct {
	UserKey     string    `json:"user_key"`
	DisplayName string    `json:"display_name"`
	RequestedAt time.Time `json:"requested_at"`

	// Identity prepared at join time so admission can bind the client without
	// re-deriving it.
	ClientId string `json:"-"`
	Role     Role   `json:"-"`
	IsGhost  bool   `json:"-"`

	// cancel for the admission timeout; nil when no timeout is armed.
	TimeoutCancel func() `json:"-"`
}
