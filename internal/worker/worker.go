package worker

import (
	"context"
	"encoding/json"
)

// ResourceUsage is a point-in-time CPU usage sample of a media-engine process.
type ResourceUsage struct {
	UserTime   float64 `json:"ru_utime"`
	SystemTime float64 `json:"ru_stime"`
}

// Load is the scalar the pool balances on.
func (u ResourceUsage) Load() float64 {
	return u.UserTime + u.SystemTime
}

// TransportInfo carries the connection parameters a client needs to establish
// a media transport against the engine.
type TransportInfo struct {
	Id             string          `json:"id"`
	IceParameters  json.RawMessage `json:"ice_parameters"`
	IceCandidates  json.RawMessage `json:"ice_candidates"`
	DtlsParameters json.RawMessage `json:"dtls_parameters"`
}

type ConsumerInfo struct {
	Id            string          `json:"id"`
	ProducerId    string          `json:"producer_id"`
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtp_parameters"`
}

// Worker is a handle to one external media-engine process. Codec configuration
// is passed through opaquely; the engine owns all media semantics.
type Worker interface {
	ResourceUsage(ctx context.Context) (ResourceUsage, error)
	CreateRouter(ctx context.Context, codecConfig json.RawMessage) (string, error)
	CloseRouter(ctx context.Context, routerId string) error
	RouterRtpCapabilities(ctx context.Context, routerId string) (json.RawMessage, error)
	CreateTransport(ctx context.Context, routerId string) (TransportInfo, error)
	ConnectTransport(ctx context.Context, transportId string, dtlsParameters json.RawMessage) error
	Produce(ctx context.Context, transportId string, kind string, rtpParameters json.RawMessage) (string, error)
	CloseProducer(ctx context.Context, producerId string) error
	Consume(ctx context.Context, transportId string, producerId string, rtpCapabilities json.RawMessage) (ConsumerInfo, error)
}
