package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camscan_sessions_started_total",
			Help: "Total number of session start attempts",
		},
		[]string{"result"}, // result: ok or a failure reason code
	)

	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camscan_scans_total",
			Help: "Total number of decoded symbols relayed to callers",
		},
		[]string{"format"},
	)

	transientErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camscan_transient_errors_total",
			Help: "Total number of per-frame decode errors",
		},
	)

	streamsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camscan_streams_open",
			Help: "Number of camera streams currently held",
		},
	)

	subscriberDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camscan_subscriber_drops_total",
			Help: "Total number of events dropped because a subscriber was full",
		},
	)
)
