package sfu

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meetsync/sfu-server/internal/domain"
	"github.com/meetsync/sfu-server/internal/worker"
	"github.com/meetsync/sfu-server/pkg/randstr"
)

type iConnRepo interface {
	Add(conn *websocket.Conn, clientId string) error
	Rekey(oldId, newId string) error
	RemoveByClientId(clientId string) error
	RemoveByConn(conn *websocket.Conn) error
	GetConn(clientId string) (*websocket.Conn, error)
	GetClientId(conn *websocket.Conn) (string, error)
}

type iPipeline interface {
	StartCapture(ctx context.Context, channelId string) error
	Finalize(ctx context.Context, channelId string)
}

type iWorkerPool interface {
	SelectWorker(ctx context.Context) (worker.Worker, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	Secret      string
	CodecConfig json.RawMessage
	// PendingTTL bounds how long a joiner may sit in the waiting room before
	// being treated as rejected.
	PendingTTL    time.Duration
	ChatMaxLength int
	NameMaxLength int
}

// service owns the room registry: the only cross-connection shared mutable
// state besides each room's own maps. The registry mutex is coarse; media
// engine calls and pipeline work never run under it.
type service struct {
	pool      iWorkerPool
	connRepo  iConnRepo
	pipeline  iPipeline
	generator iGenerator
	cfg       *Config
	logger    *slog.Logger

	// onPendingTimeout notifies a joiner whose admission wait expired.
	onPendingTimeout func(conn *websocket.Conn, channelId string)

	mu           sync.Mutex
	rooms        map[string]*domain.Room
	inflight     map[string]chan struct{} // channel ids with router creation in progress
	webinarLinks map[string]string        // link slug -> channel id
	draining     bool
}

func NewService(pool iWorkerPool, connRepo iConnRepo, pipeline iPipeline, cfg *Config, logger *slog.Logger) *service {
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	if cfg.ChatMaxLength == 0 {
		cfg.ChatMaxLength = 2000
	}
	if cfg.NameMaxLength == 0 {
		cfg.NameMaxLength = 64
	}

	return &service{
		pool:         pool,
		connRepo:     connRepo,
		pipeline:     pipeline,
		generator:    randstr.New([]byte("abcdefghijklmnopqrstuvwxyz0123456789")),
		cfg:          cfg,
		logger:       logger,
		rooms:        make(map[string]*domain.Room),
		inflight:     make(map[string]chan struct{}),
		webinarLinks: make(map[string]string),
	}
}

// SetDraining makes every subsequent join fail; used during shutdown.
func (s *service) SetDraining(draining bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = draining
}

func (s *service) getRoom(channelId string) (*domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[channelId]

	return room, ok
}

// getConns collects the live connections of every active client in the room,
// skipping the excluded client ids. Clients whose connection is already gone
// are skipped silently.
func (s *service) getConns(room *domain.Room, exclude ...string) []*websocket.Conn {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	clients := room.Clients()
	conns := make([]*websocket.Conn, 0, len(clients))
	for _, c := range clients {
		if _, ok := excluded[c.Id]; ok {
			continue
		}
		conn, err := s.connRepo.GetConn(c.Id)
		if err != nil {
			continue
		}
		conns = append(conns, conn)
	}

	return conns
}

func (s *service) getAdminConns(room *domain.Room) []*websocket.Conn {
	admins := room.Admins()
	conns := make([]*websocket.Conn, 0, len(admins))
	for _, a := range admins {
		conn, err := s.connRepo.GetConn(a.Id)
		if err != nil {
			continue
		}
		conns = append(conns, conn)
	}

	return conns
}
