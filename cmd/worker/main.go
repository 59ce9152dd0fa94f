// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bulkwave/campaign-engine/internal/config"
	"github.com/bulkwave/campaign-engine/internal/db"
	"github.com/bulkwave/campaign-engine/internal/dispatch"
	appErrors "github.com/bulkwave/campaign-engine/internal/errors"
	"github.com/bulkwave/campaign-engine/internal/metrics"
	"github.com/bulkwave/campaign-engine/internal/provider"
	"github.com/bulkwave/campaign-engine/internal/queue"
	"github.com/bulkwave/campaign-engine/internal/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env file; rely on OS environment variables.
	}
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	metrics.Register()

	dbConn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbConn.Close()

	campaignRepo := &repository.CampaignRepository{DB: dbConn}
	queueRepo := &repository.QueueItemRepository{DB: dbConn}
	messageLogRepo := &repository.MessageLogRepository{DB: dbConn}

	tokens := &provider.TokenSource{
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		AuthURL:      cfg.ProviderBaseURL + "/v1/auth/token",
		ClientID:     cfg.ProviderClientID,
		ClientSecret: cfg.ProviderClientSecret,
		SafetyMargin: cfg.TokenSafetyMargin,
		DefaultTTL:   cfg.TokenDefaultTTL,
		Log:          logger.With().Str("component", "provider").Logger(),
	}

	client := &provider.Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    cfg.ProviderBaseURL,
		BotID:      cfg.ProviderBotID,
		Tokens:     tokens,
		Log:        logger.With().Str("component", "provider").Logger(),
	}

	worker := &dispatch.Worker{
		Queue:         queueRepo,
		Logs:          messageLogRepo,
		Campaigns:     campaignRepo,
		Provider:      client,
		Tokens:        tokens,
		Limiter:       rate.NewLimiter(rate.Limit(cfg.SendRate), 1),
		BatchSize:     cfg.BatchSize,
		BatchDeadline: cfg.BatchDeadline,
		Concurrency:   cfg.SendConcurrency,
		Log:           logger.With().Str("component", "worker").Logger(),
	}

	sweeper := &dispatch.Sweeper{
		Queue: queueRepo,
		Grace: cfg.RequeueGrace,
		Log:   logger.With().Str("component", "sweeper").Logger(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Poll cycles are serialized through runCh; extra triggers while a
	// cycle is running coalesce into at most one pending run.
	runCh := make(chan struct{}, 1)
	trigger := func() {
		select {
		case runCh <- struct{}{}:
		default:
		}
	}

	cr := cron.New()
	if _, err := cr.AddFunc(cfg.PollSpec, trigger); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.PollSpec).Msg("invalid poll spec")
	}
	if cfg.RequeueGrace > 0 {
		if _, err := cr.AddFunc(cfg.SweepSpec, func() { _, _ = sweeper.Sweep(ctx) }); err != nil {
			logger.Fatal().Err(err).Str("spec", cfg.SweepSpec).Msg("invalid sweep spec")
		}
	}
	cr.Start()
	defer cr.Stop()

	bus, err := queue.Dial(cfg.AMQPURL, logger.With().Str("component", "queue").Logger())
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, relying on poll cadence only")
	} else {
		defer bus.Close()
		go func() {
			if err := bus.Consume(ctx, func(campaignID int64) {
				logger.Debug().Int64("campaign_id", campaignID).Msg("dispatch wakeup received")
				trigger()
			}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("wakeup consumer stopped")
			}
		}()
	}

	logger.Info().Str("poll", cfg.PollSpec).Int("batch_size", cfg.BatchSize).Msg("worker running")
	trigger() // drain whatever is already pending on startup

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return
		case <-runCh:
			if _, err := worker.RunCycle(ctx); err != nil {
				var authErr *appErrors.AuthError
				if errors.As(err, &authErr) {
					// Already logged by the worker; retried next poll.
					continue
				}
				logger.Error().Err(err).Msg("dispatch cycle failed")
			}
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
