package sfu

import (
	"sort"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
)

// recomputeFeed rebuilds the webinar feed snapshot and diffs it against the
// last broadcast one; an identical result produces no event. Non-webinar
// rooms never emit feed events.
func (s *service) recomputeFeed(room *domain.Room) *FeedEvent {
	if room.WebinarConfig() == nil {
		return nil
	}

	snapshot := computeFeedSnapshot(room)
	if !room.SwapLastFeed(snapshot) {
		return nil
	}

	return &FeedEvent{
		Snapshot: snapshot,
		Conns:    s.getAttendeeConns(room),
	}
}

// computeFeedSnapshot exposes the active speaker's producers plus every
// screen-share producer. The speaker is the last client to produce audio,
// falling back to the lowest client id still holding an audio producer.
// Bindings are read through a media snapshot, never the live client maps.
func computeFeedSnapshot(room *domain.Room) *domain.FeedSnapshot {
	media := room.MediaSnapshot()
	sort.Slice(media, func(i, j int) bool { return media[i].ClientId < media[j].ClientId })

	speaker := findAudioClient(media, room.ActiveSpeaker())
	if speaker == nil {
		for i := range media {
			if _, ok := media[i].Producers[domain.MediaKindAudio]; ok {
				speaker = &media[i]
				break
			}
		}
	}

	snapshot := &domain.FeedSnapshot{}
	if speaker != nil {
		snapshot.SpeakerUserId = speaker.ClientId
		for _, kind := range []domain.MediaKind{domain.MediaKindAudio, domain.MediaKindVideo} {
			if producerId, ok := speaker.Producers[kind]; ok {
				snapshot.Producers = append(snapshot.Producers, domain.FeedProducer{
					ProducerId: producerId,
					UserId:     speaker.ClientId,
					Kind:       kind,
				})
			}
		}
	}
	for _, m := range media {
		if producerId, ok := m.Producers[domain.MediaKindScreen]; ok {
			snapshot.Producers = append(snapshot.Producers, domain.FeedProducer{
				ProducerId: producerId,
				UserId:     m.ClientId,
				Kind:       domain.MediaKindScreen,
			})
		}
	}

	return snapshot
}

func findAudioClient(media []domain.ClientMedia, clientId string) *domain.ClientMedia {
	if clientId == "" {
		return nil
	}
	for i := range media {
		if media[i].ClientId == clientId {
			if _, ok := media[i].Producers[domain.MediaKindAudio]; ok {
				return &media[i]
			}
			return nil
		}
	}

	return nil
}

func (s *service) getAttendeeConns(room *domain.Room) []*websocket.Conn {
	var conns []*websocket.Conn
	for _, c := range room.Clients() {
		if c.Role != domain.RoleAttendee {
			continue
		}
		if conn, err := s.connRepo.GetConn(c.Id); err == nil {
			conns = append(conns, conn)
		}
	}

	return conns
}
