package monitoring

import (
	"context"
	"time"

	"coview/internal/core/domain"
	"coview/internal/core/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports the in-process sync counters.
type PrometheusCollector struct {
	messagesSentTotal     *prometheus.GaugeVec
	messagesAppliedTotal  *prometheus.GaugeVec
	messagesDroppedTotal  *prometheus.GaugeVec
	driftCorrectionsTotal prometheus.Gauge
	sessionState          *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		messagesSentTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coview_sync_messages_sent_total",
			Help: "Sync messages sent, by action",
		}, []string{"action"}),

		messagesAppliedTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coview_sync_messages_applied_total",
			Help: "Remote sync messages applied to the local player, by action",
		}, []string{"action"}),

		messagesDroppedTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coview_sync_messages_dropped_total",
			Help: "Sync messages dropped, by reason",
		}, []string{"reason"}),

		driftCorrectionsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "coview_sync_drift_corrections_total",
			Help: "Times a remote play snapped local position past the drift tolerance",
		}),

		sessionState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coview_session_state",
			Help: "Current session lifecycle state (1 for the active state)",
		}, []string{"state"}),
	}
}

// Export copies a metrics snapshot into the prometheus gauges.
func (p *PrometheusCollector) Export(snap services.MetricsSnapshot) {
	for action, n := range snap.MessagesSent {
		p.messagesSentTotal.WithLabelValues(string(action)).Set(float64(n))
	}
	for action, n := range snap.MessagesApplied {
		p.messagesAppliedTotal.WithLabelValues(string(action)).Set(float64(n))
	}
	for reason, n := range snap.MessagesDropped {
		p.messagesDroppedTotal.WithLabelValues(string(reason)).Set(float64(n))
	}
	p.driftCorrectionsTotal.Set(float64(snap.DriftCorrections))

	for _, state := range []domain.SessionState{
		domain.SessionIdle,
		domain.SessionGeneratingLocalSignal,
		domain.SessionAwaitingRemoteSignal,
		domain.SessionNegotiating,
		domain.SessionConnected,
		domain.SessionClosed,
		domain.SessionFailed,
	} {
		val := 0.0
		if state == snap.SessionState {
			val = 1.0
		}
		p.sessionState.WithLabelValues(string(state)).Set(val)
	}
}

// Run exports snapshots on an interval until the context ends.
func (p *PrometheusCollector) Run(ctx context.Context, metrics *services.MetricsService, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Export(metrics.Snapshot())
		}
	}
}
