package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"watsoniot-bridge/go-backend/internal/adminapi"
	"watsoniot-bridge/go-backend/internal/apikeys"
	"watsoniot-bridge/go-backend/internal/config"
	"watsoniot-bridge/go-backend/internal/logging"
	"watsoniot-bridge/go-backend/internal/metrics"
	"watsoniot-bridge/go-backend/internal/nodes"
	"watsoniot-bridge/go-backend/internal/platform/ratelimiter"
	"watsoniot-bridge/go-backend/internal/securestore"
	"watsoniot-bridge/go-backend/internal/status"
	"watsoniot-bridge/go-backend/internal/statusmirror"
	"watsoniot-bridge/go-backend/internal/wiotp"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const closeTimeout = 10 * time.Second

func main() {
	showVersion := pflag.Bool("version", false, "print version and exit")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	configPath := pflag.String("config", "", "path to config.yaml (optional)")
	addr := pflag.String("addr", "", "admin API listen address")
	adminToken := pflag.String("admin-token", "", "admin token for Authorization/"+adminapi.TokenHeader)
	logLevel := pflag.String("log-level", "", "debug | info | warn | error")
	logFormat := pflag.String("log-format", "", "json | text")
	transport := pflag.String("transport", "", "platform transport: simulator")
	vaultPath := pflag.String("vault", "", "encrypted API key vault path")
	redisURL := pflag.String("redis-url", "", "mirror node status into this Redis")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("watsoniot-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		failf("load %s: %v", *envFile, err)
	}

	cfg, used, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		failf("%v", err)
	}
	overrides := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"addr", &cfg.Server.Addr, *addr},
		{"admin-token", &cfg.Server.AdminToken, *adminToken},
		{"log-level", &cfg.Log.Level, *logLevel},
		{"log-format", &cfg.Log.Format, *logFormat},
		{"transport", &cfg.Transport, *transport},
		{"vault", &cfg.Vault.Path, *vaultPath},
		{"redis-url", &cfg.Redis.URL, *redisURL},
	}
	for _, o := range overrides {
		if pflag.CommandLine.Changed(o.flag) {
			*o.dst = o.val
		}
	}
	if err := cfg.Validate(); err != nil {
		failf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		failf("%v", err)
	}
	slog.SetDefault(logger)
	if used != "" {
		logger.Info("config loaded", "path", used)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("watsoniot-daemon failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("watsoniot-daemon stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	collector := metrics.New(true)

	credentials, err := openCredentials(cfg)
	if err != nil {
		return err
	}

	var publisher status.Publisher
	if cfg.Redis.URL != "" {
		client, err := statusmirror.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		publisher = statusmirror.New(client, statusmirror.Options{
			Channel: cfg.Redis.Channel,
			TTL:     cfg.Redis.TTL,
			Logger:  logger,
		})
		logger.Info("status mirror enabled")
	}

	factory, err := transportFactory(cfg.Transport)
	if err != nil {
		return err
	}

	host := nodes.New(nodes.Options{
		Factory:     factory,
		Credentials: credentials,
		ClearDelay:  cfg.Status.ClearDelay,
		OutboxLimit: cfg.Outbox.Limit,
		Publisher:   publisher,
		Recorder:    collector,
		Logger:      logger,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := host.Close(closeCtx); err != nil {
			logger.Warn("host close incomplete", "error", err.Error())
		}
	}()

	host.Start()
	for _, node := range cfg.Nodes {
		if err := host.AddNode(node); err != nil {
			logger.Warn("node added without session", "node_id", node.ID, "error", err.Error())
		}
	}

	srv, err := adminapi.New(adminapi.Options{
		Addr:    cfg.Server.Addr,
		Token:   cfg.Server.AdminToken,
		Host:    host,
		Metrics: collector,
		Limiter: ratelimiter.New(cfg.Server.RateLimit),
		Streams: ratelimiter.NewSlots(cfg.Server.Streams.MaxGlobal, cfg.Server.Streams.MaxPerClient),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	logger.Info("watsoniot-daemon starting", "version", version, "nodes", len(cfg.Nodes))
	return srv.Run(ctx)
}

func openCredentials(cfg config.Config) (apikeys.Store, error) {
	inline := apikeys.Static(cfg.Credentials)
	if strings.TrimSpace(cfg.Vault.Path) == "" {
		return inline, nil
	}
	passphrase := os.Getenv(cfg.Vault.PassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("vault %s: %s is not set", cfg.Vault.Path, cfg.Vault.PassphraseEnv)
	}
	vault, err := apikeys.OpenVault(cfg.Vault.Path, passphrase, securestore.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("open vault %s: %w", cfg.Vault.Path, err)
	}
	return apikeys.Chain{vault, inline}, nil
}

func transportFactory(name string) (wiotp.Factory, error) {
	switch name {
	case "", config.TransportSimulator:
		return wiotp.NewSimulator().Factory(), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", name)
	}
}

func failf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "watsoniot-daemon: "+format+"\n", args...)
	os.Exit(2)
}
