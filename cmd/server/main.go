// cmd/server/main.go
package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bulkwave/campaign-engine/internal/config"
	"github.com/bulkwave/campaign-engine/internal/controller"
	"github.com/bulkwave/campaign-engine/internal/db"
	"github.com/bulkwave/campaign-engine/internal/metrics"
	"github.com/bulkwave/campaign-engine/internal/queue"
	"github.com/bulkwave/campaign-engine/internal/repository"
	"github.com/bulkwave/campaign-engine/internal/service"
	"github.com/bulkwave/campaign-engine/internal/webhook"
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
	logger.Info().Msg("connected to database")

	var publisher queue.Publisher
	bus, err := queue.Dial(cfg.AMQPURL, logger.With().Str("component", "queue").Logger())
	if err != nil {
		// Wake-ups are an optimization over the worker's poll cadence;
		// the API stays up without the broker.
		logger.Warn().Err(err).Msg("amqp unavailable, dispatch wakeups disabled")
		publisher = queue.NopPublisher{}
	} else {
		defer bus.Close()
		publisher = bus
	}

	campaignRepo := &repository.CampaignRepository{DB: dbConn}
	queueRepo := &repository.QueueItemRepository{DB: dbConn}
	messageLogRepo := &repository.MessageLogRepository{DB: dbConn}
	inboundRepo := &repository.InboundMessageRepository{DB: dbConn}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		QueueRepo:    queueRepo,
		Queue:        publisher,
		Log:          logger.With().Str("component", "service").Logger(),
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}

	webhookHandler := &webhook.Handler{
		Reconciler: &webhook.Reconciler{
			Logs:      messageLogRepo,
			Campaigns: campaignRepo,
			Log:       logger.With().Str("component", "webhook").Logger(),
		},
		Inbound: inboundRepo,
		Log:     logger.With().Str("component", "webhook").Logger(),
	}

	r := chi.NewRouter()

	// Campaign routes (enqueue path + status read model)
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/dispatch", campaignController.DispatchCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)

	// Provider callbacks
	r.Post("/webhooks/provider", webhookHandler.HandleProviderWebhook)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := dbConn.Ping(); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
