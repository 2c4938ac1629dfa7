package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-index/wheelhouse/internal/api"
	"github.com/wheelhouse-index/wheelhouse/internal/audit"
	"github.com/wheelhouse-index/wheelhouse/internal/config"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/logging"
	"github.com/wheelhouse-index/wheelhouse/internal/metrics"
	"github.com/wheelhouse-index/wheelhouse/internal/notify"
	"github.com/wheelhouse-index/wheelhouse/internal/oidc"
	"github.com/wheelhouse-index/wheelhouse/internal/publishers"
	"github.com/wheelhouse-index/wheelhouse/internal/ratelimit"
	"github.com/wheelhouse-index/wheelhouse/internal/service"
	"github.com/wheelhouse-index/wheelhouse/internal/store"
	"github.com/wheelhouse-index/wheelhouse/internal/tasks"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wheelhouse server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

		log.Info().Msg("Initializing issuer registry...")
		registry, err := publishers.NewRegistry(cfg.CustomGitLabIssuers())
		if err != nil {
			return fmt.Errorf("building issuer registry: %w", err)
		}

		db, err := store.NewStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		auditor, err := buildAuditor(cfg)
		if err != nil {
			return fmt.Errorf("building auditor: %w", err)
		}
		defer func() {
			_ = auditor.Close()
		}()

		prom := metrics.NewPrometheusMetrics(nil)
		cache := store.NewMemoryKV()
		keys := oidc.NewKeyCache(nil, cache, prom)

		var serviceFor service.ServiceFactory
		if cfg.Development.InsecureOIDC {
			serviceFor = func(issuerURL string) oidc.Service {
				return oidc.NewNullPublisherService(issuerURL, cfg.Audience, registry, db, cache, prom)
			}
		} else {
			serviceFor = func(issuerURL string) oidc.Service {
				return oidc.NewPublisherService(issuerURL, cfg.Audience, registry, db, keys, cache, prom)
			}
		}

		minter, err := service.NewMacaroonMinter(cfg.Macaroons.Location, []byte(cfg.Macaroons.RootKey))
		if err != nil {
			return fmt.Errorf("building minter: %w", err)
		}

		limiter := ratelimit.NewLimiter(cfg.RateLimit.FillInterval, cfg.RateLimit.Capacity)

		mintService := service.NewMintService(
			registry,
			serviceFor,
			cfg.Audience,
			db, db, db,
			minter,
			auditor,
			prom,
			notify.NewLogNotifier(),
			limiter,
		)
		applyKillSwitches(mintService, cfg)

		taskManager := tasks.NewManager()
		tasks.RegisterMaintenance(taskManager, cache, db, db, prom)

		srv := api.NewServer(
			mintService,
			registry,
			taskManager,
			auditor,
			db,
			promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}),
		)

		server := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: srv.Routes(cfg.Server.AdminKey),
		}

		go func() {
			log.Info().Msgf("Starting server on %s...", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func buildAuditor(cfg *config.Config) (core.Auditor, error) {
	if !cfg.Audit.Enabled {
		return audit.NewNoopAuditor(), nil
	}
	switch cfg.Audit.Type {
	case "file":
		return audit.NewFileAuditor(cfg.Audit.Path)
	case "memory", "":
		return audit.NewInMemoryAuditor(), nil
	default:
		return nil, fmt.Errorf("unknown audit type '%s'", cfg.Audit.Type)
	}
}

// applyKillSwitches disables every family not explicitly enabled in config.
func applyKillSwitches(s *service.MintService, cfg *config.Config) {
	enabled := make(map[core.Kind]bool)
	for _, name := range cfg.EnabledKinds() {
		kind, err := core.ParseKind(name)
		if err != nil {
			continue // validated at load time
		}
		enabled[kind] = true
	}
	for _, kind := range core.Kinds() {
		s.SetKindEnabled(kind, enabled[kind])
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
