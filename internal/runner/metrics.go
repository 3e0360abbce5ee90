package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funpay_runner_cycles_total",
		Help: "Poll cycles by result",
	}, []string{"result"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funpay_runner_events_total",
		Help: "Events emitted to consumers by kind",
	}, []string{"kind"})

	suppressedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funpay_runner_suppressed_events_total",
		Help: "Events discarded while seeding the baseline",
	})

	orderListRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funpay_runner_order_list_retries_total",
		Help: "Failed order listing attempts that were retried",
	})

	orderListExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funpay_runner_order_list_exhausted_total",
		Help: "Cycles whose order diff was skipped after all attempts failed",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funpay_runner_cycle_duration_seconds",
		Help:    "Duration of one poll cycle, excluding the inter-cycle sleep",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	snapshotEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "funpay_runner_snapshot_entries",
		Help: "Tracked snapshot entries by entity",
	}, []string{"entity"})
)
