package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meetsync/sfu-server/internal/collaborator"
	"github.com/meetsync/sfu-server/internal/controller"
	artifactredis "github.com/meetsync/sfu-server/internal/repository/artifact/redis"
	"github.com/meetsync/sfu-server/internal/repository/connection/inmemory"
	"github.com/meetsync/sfu-server/internal/service/minutes"
	"github.com/meetsync/sfu-server/internal/service/sfu"
	"github.com/meetsync/sfu-server/internal/worker"
	"github.com/meetsync/sfu-server/pkg/ctxlogger"
	"github.com/meetsync/sfu-server/pkg/redisclient"
)

type AppConfig struct {
	Secret   string `json:"-"`
	AdminKey string `json:"-"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`

	RedisHost     string `json:"redis_host"`
	RedisPort     int    `json:"redis_port"`
	RedisPassword string `json:"-"`

	WorkerControlURLs []string `json:"worker_control_urls"`
	CodecConfigPath   string   `json:"codec_config_path"`

	TranscriberURL string `json:"transcriber_url"`
	SummarizerURL  string `json:"summarizer_url"`
	RendererURL    string `json:"renderer_url"`
	BotManagerURL  string `json:"bot_manager_url"`

	PendingTTLMinutes      int `json:"pending_ttl_minutes"`
	MinutesCacheTTLMinutes int `json:"minutes_cache_ttl_minutes"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Secret == "" {
		return fmt.Errorf("secret must not be empty")
	}
	if len(cfg.WorkerControlURLs) == 0 {
		return fmt.Errorf("at least one worker control url is required")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)
	slog.SetDefault(logger)

	rc, err := redisclient.New(&redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	var codecConfig json.RawMessage
	if cfg.CodecConfigPath != "" {
		codecConfig, err = os.ReadFile(cfg.CodecConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read codec config: %w", err)
		}
	}

	// Worker death is unrecoverable: rooms pinned to the dead engine cannot be
	// moved, so the process exits and the orchestrator restarts it.
	workers := make([]worker.Worker, 0, len(cfg.WorkerControlURLs))
	for _, controlURL := range cfg.WorkerControlURLs {
		w, err := worker.Dial(controlURL, func(dialErr error) {
			logger.Error("worker control socket died", "url", controlURL, "error", dialErr)
			os.Exit(1)
		})
		if err != nil {
			return fmt.Errorf("failed to connect worker %s: %w", controlURL, err)
		}
		workers = append(workers, w)
	}
	pool := worker.NewPool(workers)

	minutesCacheTTL := 30 * time.Minute
	if cfg.MinutesCacheTTLMinutes > 0 {
		minutesCacheTTL = time.Duration(cfg.MinutesCacheTTLMinutes) * time.Minute
	}

	artifactRepo := artifactredis.NewRepo(rc, minutesCacheTTL)
	minutesService := minutes.NewService(
		artifactRepo,
		collaborator.NewTranscriberClient(cfg.TranscriberURL),
		collaborator.NewSummarizerClient(cfg.SummarizerURL),
		collaborator.NewRendererClient(cfg.RendererURL),
		collaborator.NewBotManagerClient(cfg.BotManagerURL),
		logger,
	)

	connectionRepo := inmemory.NewRepo()
	sfuService := sfu.NewService(pool, connectionRepo, minutesService, &sfu.Config{
		Secret:      cfg.Secret,
		CodecConfig: codecConfig,
		PendingTTL:  time.Duration(cfg.PendingTTLMinutes) * time.Minute,
	}, logger)

	controller := controller.NewController(sfuService, minutesService, cfg.AdminKey, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		// Stop admitting joins before tearing the listener down.
		sfuService.SetDraining(true)

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr, "workers", pool.Size())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
