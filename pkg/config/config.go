package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Animation Animation `envPrefix:"ANIMATION_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
	}

	HTTP struct {
		Server          Server        `envPrefix:"SERVER_"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level       string `env:"LEVEL,required"`
		Service     string `env:"SERVICE" envDefault:"tileanim"`
		Development bool   `env:"DEVELOPMENT" envDefault:"true"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-tileanim"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Animation struct {
		FrameDuration time.Duration `env:"FRAME_DURATION" envDefault:"500ms"`
		MinZoom       int           `env:"MIN_ZOOM" envDefault:"3"`
		MaxZoom       int           `env:"MAX_ZOOM" envDefault:"9"`
		TileSize      int           `env:"TILE_SIZE" envDefault:"256"`
		TemplateURLs  []string      `env:"TEMPLATE_URLS" envSeparator:","`
		FramesFile    string        `env:"FRAMES_FILE"`
		FrameStride   int           `env:"FRAME_STRIDE" envDefault:"1"`
		Workers       int           `env:"WORKERS" envDefault:"4"`
		StaticTiles   int           `env:"STATIC_TILES" envDefault:"256"`
		MaxTiles      int           `env:"MAX_TILES" envDefault:"1024"`
		FailedTiles   string        `env:"FAILED_TILES" envDefault:"skip"`
	}

	Upstream struct {
		Timeout   time.Duration     `env:"TIMEOUT" envDefault:"30s"`
		UserAgent string            `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
		Referer   string            `env:"REFERER" envDefault:"https://guidehelper.ru.tuna.am"`
		Headers   map[string]string `env:"HEADERS" envSeparator:"," envKeyValSeparator:":"`
	}

	Cache struct {
		Backend       string `env:"BACKEND" envDefault:"memory"`
		MemoryEntries int    `env:"MEMORY_ENTRIES" envDefault:"4096"`
		SQLiteDSN     string `env:"SQLITE_DSN" envDefault:"file:tileanim.db?cache=shared&mode=memory"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
