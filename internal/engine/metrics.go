package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camscan_frames_processed_total",
			Help: "Total number of frames processed by the decode loop",
		},
		[]string{"result"}, // result: decoded, not_found, error
	)

	decodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "camscan_decode_duration_seconds",
			Help:    "Time spent decoding a single frame",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)
