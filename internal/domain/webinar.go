package domain

// WebinarConfig controls the public-link variant of a room. LinkVersion
// increments whenever the link or its public-access flag changes so clients
// can invalidate cached references.
type WebinarConfig struct {
	MaxAttendees int    `json:"max_attendees"`
	LinkSlug     string `json:"link_slug"`
	LinkVersion  int    `json:"link_version"`
	PublicAccess bool   `json:"public_access"`
}

type FeedProducer struct {
	ProducerId string    `json:"producer_id"`
	UserId     string    `json:"user_id"`
	Kind       MediaKind `json:"kind"`
}

// FeedSnapshot is the producer set exposed to attendee-role clients.
type FeedSnapshot struct {
	SpeakerUserId string         `json:"speaker_user_id"`
	Producers     []FeedProducer `json:"producers"`
}

func (s *FeedSnapshot) Equal(other *FeedSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.SpeakerUserId != other.SpeakerUserId || len(s.Producers) != len(other.Producers) {
		return false
	}
	for i := range s.Producers {
		if s.Producers[i] != other.Producers[i] {
			return false
		}
	}

	return true
}
