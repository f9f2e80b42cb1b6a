package sfu

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
	"github.com/meetsync/sfu-server/internal/worker"
)

type TransportDirection string

const (
	TransportProducer TransportDirection = "producer"
	TransportConsumer TransportDirection = "consumer"
)

// resolveClient maps the connection binding to its room and client; callers
// not bound to a room fail with ErrNotInRoom.
func (s *service) resolveClient(channelId, clientId string) (*domain.Room, *domain.Client, error) {
	if channelId == "" || clientId == "" {
		return nil, nil, ErrNotInRoom
	}
	room, ok := s.getRoom(channelId)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	client, ok := room.Client(clientId)
	if !ok {
		return nil, nil, ErrNotInRoom
	}

	return room, client, nil
}

type SessionParams struct {
	ChannelId string
	ClientId  string
}

func (s *service) GetRouterRtpCapabilities(ctx context.Context, params *SessionParams) (json.RawMessage, error) {
	room, _, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return nil, err
	}

	capabilities, err := room.Worker.RouterRtpCapabilities(ctx, room.RouterId)
	if err != nil {
		return nil, fmt.Errorf("failed to get router rtp capabilities: %w", err)
	}

	return capabilities, nil
}

type CreateTransportParams struct {
	SessionParams
	Direction TransportDirection
}

// CreateTransport creates the client's producer or consumer transport. Each
// is created once and never replaced for the connection's lifetime.
func (s *service) CreateTransport(ctx context.Context, params *CreateTransportParams) (worker.TransportInfo, error) {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return worker.TransportInfo{}, err
	}

	switch params.Direction {
	case TransportProducer:
		if transportId, _ := room.ProducerTransport(client.Id); transportId != "" {
			return worker.TransportInfo{}, ErrTransportExists
		}
	case TransportConsumer:
		if transportId, _ := room.ConsumerTransport(client.Id); transportId != "" {
			return worker.TransportInfo{}, ErrTransportExists
		}
	default:
		return worker.TransportInfo{}, fmt.Errorf("%w: unknown transport direction %q", ErrValidation, params.Direction)
	}

	info, err := room.Worker.CreateTransport(ctx, room.RouterId)
	if err != nil {
		return worker.TransportInfo{}, fmt.Errorf("failed to create transport: %w", err)
	}

	if params.Direction == TransportProducer {
		room.SetProducerTransport(client.Id, info.Id)
	} else {
		room.SetConsumerTransport(client.Id, info.Id)
	}

	return info, nil
}

type ConnectTransportParams struct {
	SessionParams
	Direction      TransportDirection
	DtlsParameters json.RawMessage
}

func (s *service) ConnectTransport(ctx context.Context, params *ConnectTransportParams) error {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return err
	}

	var transportId string
	switch params.Direction {
	case TransportProducer:
		transportId, _ = room.ProducerTransport(client.Id)
	case TransportConsumer:
		transportId, _ = room.ConsumerTransport(client.Id)
	}
	if transportId == "" {
		return ErrTransportNotFound
	}

	if err := room.Worker.ConnectTransport(ctx, transportId, params.DtlsParameters); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}

	return nil
}

type ProduceParams struct {
	SessionParams
	Kind          domain.MediaKind
	RtpParameters json.RawMessage
}

type ProduceResponse struct {
	ProducerId string
	Feed       *FeedEvent
}

// Produce creates a media producer of the given kind on the client's producer
// transport. Re-producing a kind replaces the previous producer.
func (s *service) Produce(ctx context.Context, params *ProduceParams) (ProduceResponse, error) {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return ProduceResponse{}, err
	}
	transportId, _ := room.ProducerTransport(client.Id)
	if transportId == "" {
		return ProduceResponse{}, ErrTransportNotFound
	}
	switch params.Kind {
	case domain.MediaKindAudio, domain.MediaKindVideo, domain.MediaKindScreen:
	default:
		return ProduceResponse{}, fmt.Errorf("%w: unknown media kind %q", ErrValidation, params.Kind)
	}

	if previousId, ok := room.Producer(client.Id, params.Kind); ok {
		if err := room.Worker.CloseProducer(ctx, previousId); err != nil {
			s.logger.WarnContext(ctx, "failed to close replaced producer", "producerId", previousId, "error", err)
		}
		room.RemoveProducer(client.Id, params.Kind, previousId)
	}

	producerId, err := room.Worker.Produce(ctx, transportId, string(params.Kind), params.RtpParameters)
	if err != nil {
		return ProduceResponse{}, fmt.Errorf("failed to produce: %w", err)
	}
	room.SetProducer(client.Id, params.Kind, producerId)

	if params.Kind == domain.MediaKindAudio {
		room.SetActiveSpeaker(client.Id)
	}

	return ProduceResponse{
		ProducerId: producerId,
		Feed:       s.recomputeFeed(room),
	}, nil
}

type CloseProducerParams struct {
	SessionParams
	ProducerId string
}

type CloseProducerResponse struct {
	Closed ProducerClosed
	Conns  []*websocket.Conn
	Feed   *FeedEvent
}

// CloseProducer closes one of the caller's own producers.
func (s *service) CloseProducer(ctx context.Context, params *CloseProducerParams) (CloseProducerResponse, error) {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return CloseProducerResponse{}, err
	}

	ownerId, kind, ok := room.FindProducer(params.ProducerId)
	if !ok || ownerId != client.Id {
		return CloseProducerResponse{}, ErrProducerNotFound
	}

	if err := room.Worker.CloseProducer(ctx, params.ProducerId); err != nil {
		return CloseProducerResponse{}, fmt.Errorf("failed to close producer: %w", err)
	}
	room.RemoveProducer(client.Id, kind, params.ProducerId)

	return CloseProducerResponse{
		Closed: ProducerClosed{ProducerId: params.ProducerId, OwnerUserId: client.Id},
		Conns:  s.getConns(room, client.Id),
		Feed:   s.recomputeFeed(room),
	}, nil
}

type ConsumeParams struct {
	SessionParams
	ProducerId      string
	RtpCapabilities json.RawMessage
}

func (s *service) Consume(ctx context.Context, params *ConsumeParams) (worker.ConsumerInfo, error) {
	room, client, err := s.resolveClient(params.ChannelId, params.ClientId)
	if err != nil {
		return worker.ConsumerInfo{}, err
	}
	transportId, _ := room.ConsumerTransport(client.Id)
	if transportId == "" {
		return worker.ConsumerInfo{}, ErrTransportNotFound
	}

	info, err := room.Worker.Consume(ctx, transportId, params.ProducerId, params.RtpCapabilities)
	if err != nil {
		return worker.ConsumerInfo{}, fmt.Errorf("failed to consume: %w", err)
	}

	return info, nil
}
