package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the dispatch engine and webhook reconciler
var (
    ItemsDispatchedTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "dispatch_items_total",
            Help: "Queue items dispatched, by final outcome (sent, failed, abandoned)",
        },
        []string{"outcome"},
    )

    FallbackSendsTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Name: "dispatch_fallback_sends_total",
            Help: "Template sends that fell back to a raw text send",
        },
    )

    CycleDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Name:    "dispatch_cycle_duration_seconds",
            Help:    "Wall-clock duration of one dispatch poll cycle",
            Buckets: prometheus.DefBuckets,
        },
    )

    TokenRefreshTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "provider_token_refresh_total",
            Help: "Provider token refreshes, by result (ok, error)",
        },
        []string{"result"},
    )

    AmbiguousResponsesTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Name: "provider_ambiguous_responses_total",
            Help: "Provider responses accepted as success without an explicit success field",
        },
    )

    WebhookEventsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "webhook_events_total",
            Help: "Webhook events received, by kind (report, inbound, unknown) and result (applied, dropped, error)",
        },
        []string{"kind", "result"},
    )

    StaleItemsRequeuedTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Name: "dispatch_stale_items_requeued_total",
            Help: "Processing items requeued to pending by the recovery sweep",
        },
    )
)

// Register registers all Prometheus metrics
func Register() {
    prometheus.MustRegister(ItemsDispatchedTotal)
    prometheus.MustRegister(FallbackSendsTotal)
    prometheus.MustRegister(CycleDuration)
    prometheus.MustRegister(TokenRefreshTotal)
    prometheus.MustRegister(AmbiguousResponsesTotal)
    prometheus.MustRegister(WebhookEventsTotal)
    prometheus.MustRegister(StaleItemsRequeuedTotal)
}
