package commands

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"

	"bgageek-backend/internal/chrono"
	"bgageek-backend/internal/configutil"
	"bgageek-backend/internal/kv"
	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/scrapers/bga"
	"bgageek-backend/internal/scrapers/bgg"
	"bgageek-backend/internal/telemetry"
	"bgageek-backend/internal/ttlcache"
)

type Config struct {
	Database kv.Config `json:"database"`

	RequestDelay configutil.Duration `json:"request_delay"`
	MappingTTL   configutil.Duration `json:"mapping_ttl"`
	StatsTTL     configutil.Duration `json:"stats_ttl"`

	SearchEndpoint   string `json:"search_endpoint"`
	CatalogBaseUrl   string `json:"catalog_base_url"`
	UserAgent        string `json:"user_agent"`
	CloudflareBypass bool   `json:"cloudflare_bypass"`

	HttpPort    int    `json:"http_port"`
	AccessToken string `json:"access_token"`

	ScanPages    []string            `json:"scan_pages"`
	ScanInterval configutil.Duration `json:"scan_interval"`

	// HttpDumpDir, when set, receives a file for every http exchange.
	HttpDumpDir string `json:"http_dump_dir"`

	Telemetry telemetry.Config `json:"telemetry"`
}

const defaultHttpPort = 8000

func loadConfig() (Config, error) {
	var cfg Config
	var err error
	if rootCmd.PersistentFlags().Changed("config") {
		cfg, err = configutil.ReadConfig[Config](configPath)
	} else {
		// the default config is searched for from the working directory upwards
		var path string
		cfg, path, err = configutil.ReadRecursively[Config](".", configPath)
		if err == nil {
			slog.Debug("found config file", "path", path)
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config file found, using defaults", "path", configPath)
		err = nil
	}
	if err != nil {
		return Config{}, err
	}
	if cfg.HttpPort == 0 {
		cfg.HttpPort = defaultHttpPort
	}
	return cfg, nil
}

// app holds everything the commands share, it is built from the config.
type app struct {
	config    Config
	db        *sql.DB
	cache     ttlcache.Cache
	client    *bgg.Client
	dump      *telemetry.HttpDump
	tel       telemetry.API
	telemetry telemetry.Telemetry
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	providers, err := telemetry.Setup(ctx, "bgageek", cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	db, err := cfg.Database.OpenDB()
	if err != nil {
		providers.Shutdown(ctx)
		return nil, err
	}

	var dump *telemetry.HttpDump
	if cfg.HttpDumpDir != "" {
		d, err := telemetry.NewHttpDump(cfg.HttpDumpDir)
		if err != nil {
			db.Close()
			providers.Shutdown(ctx)
			return nil, err
		}
		dump = &d
	}

	tel := telemetry.SlogAPI{}
	client := bgg.NewClient(bgg.ClientOptions{
		SearchEndpoint:   cfg.SearchEndpoint,
		CatalogBaseUrl:   cfg.CatalogBaseUrl,
		UserAgent:        cfg.UserAgent,
		CloudflareBypass: cfg.CloudflareBypass,
		Dump:             dump,
	}, tel)

	return &app{
		config:    cfg,
		db:        db,
		cache:     ttlcache.New(kv.NewSQLStore(db), chrono.NewStandardTime()),
		client:    client,
		dump:      dump,
		tel:       tel,
		telemetry: providers,
	}, nil
}

func (a *app) scanner(pages []string) *bga.Scanner {
	return bga.NewScanner(bga.ScannerOptions{
		Pages:     pages,
		UserAgent: a.config.UserAgent,
		Dump:      a.dump,
	}, a.tel)
}

func (a *app) scheduler(renderer pipeline.Renderer, log pipeline.LogSink) *pipeline.Scheduler {
	return pipeline.NewScheduler(
		pipeline.Options{
			Delay:      a.config.RequestDelay.Std(),
			MappingTTL: a.config.MappingTTL.Std(),
			StatsTTL:   a.config.StatsTTL.Std(),
		},
		a.cache,
		a.client,
		a.client,
		renderer,
		log,
		a.tel,
	)
}

func (a *app) Close() {
	err := a.db.Close()
	if err != nil {
		slog.Warn("failed to close database", "err", err.Error())
	}
	err = a.telemetry.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to shutdown telemetry", "err", err.Error())
	}
}

// slogSink writes pipeline logs to the terminal.
var slogSink = pipeline.LogSinkFunc(func(message string, severity pipeline.Severity) {
	switch severity {
	case pipeline.SEVERITY_ERROR:
		slog.Error(message)
	case pipeline.SEVERITY_WARN:
		slog.Warn(message)
	default:
		slog.Info(message, "severity", string(severity))
	}
})
