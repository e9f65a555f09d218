package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notivio_sends_total",
			Help: "Total send attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notivio_webhook_events_total",
			Help: "Total webhook events by canonical status",
		},
		[]string{"status"},
	)

	CampaignDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notivio_campaign_dispatches_total",
			Help: "Total campaign dispatch runs by mode (inline or queued)",
		},
		[]string{"mode"},
	)
)

// Init registers all collectors with the default registry.
func Init() {
	prometheus.MustRegister(SendsTotal)
	prometheus.MustRegister(WebhookEvents)
	prometheus.MustRegister(CampaignDispatches)
}
