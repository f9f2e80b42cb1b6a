package sfu

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meetsync/sfu-server/internal/domain"
)

// GuestKeyPrefix marks user keys issued to anonymous joiners; they carry
// reduced privileges in the admission policy.
const GuestKeyPrefix = "guest:"

// Credential is the verified identity presented at connection start.
type Credential struct {
	UserKey   string
	SessionId string
	Name      string
	TenantId  string
	Role      domain.Role
	Ghost     bool
}

func (c *Credential) IsGuest() bool {
	return strings.HasPrefix(c.UserKey, GuestKeyPrefix)
}

// ParseCredential verifies the signed connection token against the shared
// secret and derives the identity from its claims. A missing stable subject
// fails with ErrMissingIdentity; no active state is reachable without it.
func (s *service) ParseCredential(token string) (*Credential, error) {
	parsed, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredential
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidCredential
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrMissingIdentity
	}

	cred := &Credential{
		UserKey: sub,
		Role:    domain.RoleParticipant,
	}
	if v, ok := claims["session_id"].(string); ok {
		cred.SessionId = v
	}
	if v, ok := claims["name"].(string); ok {
		cred.Name = v
	}
	if v, ok := claims["tenant_id"].(string); ok {
		cred.TenantId = v
	}
	if v, ok := claims["role"].(string); ok {
		switch domain.Role(v) {
		case domain.RoleAdmin, domain.RoleAttendee, domain.RoleParticipant:
			cred.Role = domain.Role(v)
		default:
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidCredential, v)
		}
	}
	if v, ok := claims["ghost"].(bool); ok {
		cred.Ghost = v
	}

	return cred, nil
}

// deriveClientId builds the unique per-session client id. The effective
// session id prefers the explicit claim, then the connection-level session
// id, then the raw connection id, so concurrent sessions from one account
// never collide.
func deriveClientId(cred *Credential, connSessionId, connId string) string {
	effective := cred.SessionId
	if effective == "" {
		effective = connSessionId
	}
	if effective == "" {
		effective = connId
	}

	return cred.UserKey + "#" + effective
}

// resolveDisplayName prefers a room-level admin override, then the supplied
// name, then the bare user key.
func resolveDisplayName(room *domain.Room, cred *Credential) string {
	if room != nil {
		if override, ok := room.NameOverride(cred.UserKey); ok {
			return override
		}
	}
	if cred.Name != "" {
		return cred.Name
	}

	return cred.UserKey
}

func validateUserKey(userKey string) error {
	if userKey == "" {
		return fmt.Errorf("%w: user key is required", ErrValidation)
	}

	return nil
}
