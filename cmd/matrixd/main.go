package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"matrixchain/cmd/internal/passphrase"
	"matrixchain/config"
	"matrixchain/core"
	"matrixchain/core/events"
	"matrixchain/core/pricing"
	matrixstate "matrixchain/core/state"
	"matrixchain/observability/logging"
	telemetry "matrixchain/observability/otel"
	"matrixchain/rpc"
	"matrixchain/storage"
)

const ownerPassEnv = "MATRIX_OWNER_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MATRIX_ENV"))
	logger := logging.Setup("matrixd", env)

	passSource := passphrase.NewSource(ownerPassEnv, "owner keystore passphrase")
	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Telemetry.Environment
	}
	logger = logging.Setup(cfg.Telemetry.Service, env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *allowMigrateFlag, logger); err != nil {
		logger.Error("matrixd stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("matrixd stopped")
}

func run(ctx context.Context, cfg *config.Config, allowMigrate bool, logger *slog.Logger) error {
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.Service,
			Environment: cfg.Telemetry.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := matrixstate.EnsureStateVersion(db, allowMigrate || cfg.AllowMigrate); err != nil {
		return err
	}

	treasury, err := cfg.TreasuryAccount()
	if err != nil {
		return err
	}
	node, err := core.NewNode(db, treasury)
	if err != nil {
		return err
	}
	node.SetLogger(logger)
	node.SetEmitter(eventLogger{logger: logger})

	oracle, err := pricing.NewStaticUSDOracle(cfg.Oracle.LadderCents, cfg.Oracle.CentsPerUnit)
	if err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	node.SetOracle(oracle)

	if err := ensureGenesis(node, cfg, logger); err != nil {
		return err
	}

	token := strings.TrimSpace(os.Getenv(cfg.RPC.AuthTokenEnv))
	if token == "" {
		logger.Warn("RPC auth token not set; mutating methods are disabled", slog.String("env", cfg.RPC.AuthTokenEnv))
	}
	server, err := rpc.NewServer(node, rpc.ServerConfig{
		AuthToken:         token,
		RateLimit:         cfg.RPC.RateLimit,
		RateBurst:         cfg.RPC.RateBurst,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		TrustProxyHeaders: cfg.RPC.TrustProxyHdrs,
	}, logger)
	if err != nil {
		return err
	}
	return server.Serve(ctx, cfg.RPCAddress, func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(h, "matrixd.rpc")
	})
}

// ensureGenesis seeds an empty database from the configured genesis. A
// database that already holds a root is left untouched.
func ensureGenesis(node *core.Node, cfg *config.Config, logger *slog.Logger) error {
	initialized, err := node.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		return nil
	}
	genesis, err := cfg.MatrixGenesis()
	if err != nil {
		return err
	}
	balances, err := cfg.GenesisBalances()
	if err != nil {
		return err
	}
	root, err := node.InitGenesis(genesis, balances)
	if err != nil {
		return fmt.Errorf("init genesis: %w", err)
	}
	logger.Info("genesis applied",
		slog.Uint64("root_id", root.ID),
		slog.Int("funded_accounts", len(balances)))
	return nil
}

// eventLogger writes committed event types at debug level.
type eventLogger struct {
	logger *slog.Logger
}

func (l eventLogger) Emit(evt events.Event) {
	l.logger.Debug("matrix event committed", slog.String("type", evt.EventType()))
}
