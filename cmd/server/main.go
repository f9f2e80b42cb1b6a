package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meetsync/sfu-server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
	}
	adminKey = configVar[string]{
		envKey:       "SERVER_ADMIN_KEY",
		flagKey:      "admin-key",
		defaultValue: "",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	workerControlURLs = configVar[[]string]{
		envKey:       "WORKER_CONTROL_URLS",
		flagKey:      "worker-control-urls",
		defaultValue: []string{"ws://localhost:4443"},
	}
	codecConfigPath = configVar[string]{
		envKey:       "CODEC_CONFIG_PATH",
		flagKey:      "codec-config-path",
		defaultValue: "",
	}
	transcriberURL = configVar[string]{
		envKey:       "TRANSCRIBER_URL",
		flagKey:      "transcriber-url",
		defaultValue: "http://localhost:7001",
	}
	summarizerURL = configVar[string]{
		envKey:       "SUMMARIZER_URL",
		flagKey:      "summarizer-url",
		defaultValue: "http://localhost:7002",
	}
	rendererURL = configVar[string]{
		envKey:       "RENDERER_URL",
		flagKey:      "renderer-url",
		defaultValue: "http://localhost:7003",
	}
	botManagerURL = configVar[string]{
		envKey:       "BOT_MANAGER_URL",
		flagKey:      "bot-manager-url",
		defaultValue: "http://localhost:7004",
	}
	pendingTTLMinutes = configVar[int]{
		envKey:       "PENDING_TTL_MINUTES",
		flagKey:      "pending-ttl-minutes",
		defaultValue: 10,
	}
	minutesCacheTTLMinutes = configVar[int]{
		envKey:       "MINUTES_CACHE_TTL_MINUTES",
		flagKey:      "minutes-cache-ttl-minutes",
		defaultValue: 30,
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(secret.flagKey, secret.defaultValue, "Connection token signing secret")
	pflag.String(adminKey.flagKey, adminKey.defaultValue, "Shared secret for backend API endpoints")
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.StringSlice(workerControlURLs.flagKey, workerControlURLs.defaultValue, "Media engine control socket urls")
	pflag.String(codecConfigPath.flagKey, codecConfigPath.defaultValue, "Path to the router codec config json")
	pflag.String(transcriberURL.flagKey, transcriberURL.defaultValue, "Transcriber base url")
	pflag.String(summarizerURL.flagKey, summarizerURL.defaultValue, "Summarizer base url")
	pflag.String(rendererURL.flagKey, rendererURL.defaultValue, "Minutes renderer base url")
	pflag.String(botManagerURL.flagKey, botManagerURL.defaultValue, "Capture bot manager base url")
	pflag.Int(pendingTTLMinutes.flagKey, pendingTTLMinutes.defaultValue, "Waiting room admission timeout in minutes")
	pflag.Int(minutesCacheTTLMinutes.flagKey, minutesCacheTTLMinutes.defaultValue, "Post-meeting artifact cache TTL in minutes")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(secret.flagKey, secret.envKey)
	viper.BindEnv(adminKey.flagKey, adminKey.envKey)
	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)
	viper.BindEnv(workerControlURLs.flagKey, workerControlURLs.envKey)
	viper.BindEnv(codecConfigPath.flagKey, codecConfigPath.envKey)
	viper.BindEnv(transcriberURL.flagKey, transcriberURL.envKey)
	viper.BindEnv(summarizerURL.flagKey, summarizerURL.envKey)
	viper.BindEnv(rendererURL.flagKey, rendererURL.envKey)
	viper.BindEnv(botManagerURL.flagKey, botManagerURL.envKey)
	viper.BindEnv(pendingTTLMinutes.flagKey, pendingTTLMinutes.envKey)
	viper.BindEnv(minutesCacheTTLMinutes.flagKey, minutesCacheTTLMinutes.envKey)

	viper.SetDefault(secret.flagKey, secret.defaultValue)
	viper.SetDefault(adminKey.flagKey, adminKey.defaultValue)
	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)
	viper.SetDefault(workerControlURLs.flagKey, workerControlURLs.defaultValue)
	viper.SetDefault(codecConfigPath.flagKey, codecConfigPath.defaultValue)
	viper.SetDefault(transcriberURL.flagKey, transcriberURL.defaultValue)
	viper.SetDefault(summarizerURL.flagKey, summarizerURL.defaultValue)
	viper.SetDefault(rendererURL.flagKey, rendererURL.defaultValue)
	viper.SetDefault(botManagerURL.flagKey, botManagerURL.defaultValue)
	viper.SetDefault(pendingTTLMinutes.flagKey, pendingTTLMinutes.defaultValue)
	viper.SetDefault(minutesCacheTTLMinutes.flagKey, minutesCacheTTLMinutes.defaultValue)

	config := &app.AppConfig{
		Secret:                 viper.GetString(secret.flagKey),
		AdminKey:               viper.GetString(adminKey.flagKey),
		Host:                   viper.GetString(host.flagKey),
		Port:                   viper.GetInt(port.flagKey),
		LogLevel:               viper.GetString(logLevel.flagKey),
		RedisHost:              viper.GetString(redisHost.flagKey),
		RedisPort:              viper.GetInt(redisPort.flagKey),
		RedisPassword:          viper.GetString(redisPassword.flagKey),
		WorkerControlURLs:      viper.GetStringSlice(workerControlURLs.flagKey),
		CodecConfigPath:        viper.GetString(codecConfigPath.flagKey),
		TranscriberURL:         viper.GetString(transcriberURL.flagKey),
		SummarizerURL:          viper.GetString(summarizerURL.flagKey),
		RendererURL:            viper.GetString(rendererURL.flagKey),
		BotManagerURL:          viper.GetString(botManagerURL.flagKey),
		PendingTTLMinutes:      viper.GetInt(pendingTTLMinutes.flagKey),
		MinutesCacheTTLMinutes: viper.GetInt(minutesCacheTTLMinutes.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
