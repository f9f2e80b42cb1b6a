package sfu

import "errors"

var (
	ErrMissingIdentity   = errors.New("missing identity")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNotInRoom         = errors.New("not in a room")
	ErrRoomNotFound      = errors.New("room not found")
	ErrTransportNotFound = errors.New("transport not found")
	ErrTransportExists   = errors.New("transport already created")
	ErrUserNotFound      = errors.New("user not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrGhostForbidden    = errors.New("operation forbidden for ghost clients")
	ErrValidation        = errors.New("validation failed")
	ErrRoomFull          = errors.New("room is full")
	ErrLinkNotFound      = errors.New("webinar link not found")
	ErrDraining          = errors.New("server is draining")
	ErrAlreadyJoined     = errors.New("connection already joined a room")
)
