package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/taskqueue/internal/api"
	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/health"
)

const pruneInterval = time.Hour

// pruner is the part of the journal the retention loop needs.
type pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	if err := a.cfg.Validate(); err != nil {
		return perrors.Wrap(perrors.KindConfigurationError, err, "invalid configuration")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.withDeps(func(d *deps) error {
		checker := health.NewChecker(a.logger)
		checker.Register("store", health.StoreCheck(d.store))

		var events api.EventLister
		if d.journal != nil {
			events = d.journal
			checker.Register("journal", health.PingCheck(d.journal))
			if a.cfg.JournalRetention > 0 {
				pctx, cancel := context.WithCancel(ctx)
				defer cancel()
				go runPruner(pctx, d.journal, a.cfg.JournalRetention, pruneInterval, a.logger)
			}
		}

		srv := api.NewServer(api.ServerConfig{
			ListenAddr: a.cfg.ListenAddr,
			AuthConfig: api.AuthConfig{
				Mode:           a.cfg.AuthMode,
				APIKey:         a.cfg.APIKey,
				ReadOnlyAPIKey: a.cfg.ReadOnlyAPIKey,
				JWTSecret:      a.cfg.JWTSecret,
			},
			RateLimit: api.RateLimitConfig{
				RPS:   a.cfg.RateLimitRPS,
				Burst: a.cfg.RateLimitBurst,
			},
			CORSOrigins: a.cfg.CORSOrigins,
		}, d.registry, events, checker, d.metrics, a.logger)

		a.logger.Info().
			Str("environment", a.cfg.Environment).
			Str("file", d.store.Path()).
			Str("addr", a.cfg.ListenAddr).
			Str("auth_mode", a.cfg.AuthMode).
			Bool("status_enabled", a.cfg.StatusEnabled()).
			Bool("journal_enabled", a.cfg.JournalEnabled()).
			Msg("starting taskqueue")

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.logger.Info().Msg("shutdown signal received")
		if err := srv.Shutdown(); err != nil {
			a.logger.Error().Err(err).Msg("API server shutdown error")
			return err
		}
		a.logger.Info().Msg("taskqueue stopped")
		return nil
	})
}

// runPruner drops journal events older than retention now and on every tick
// until ctx is done.
func runPruner(ctx context.Context, p pruner, retention, every time.Duration, logger zerolog.Logger) {
	prune := func() {
		n, err := p.Prune(ctx, retention)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to prune journal")
			return
		}
		if n > 0 {
			logger.Info().Int64("removed", n).Dur("retention", retention).Msg("journal pruned")
		}
	}

	prune()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
