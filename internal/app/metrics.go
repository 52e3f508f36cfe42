package app

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/itemtracker/internal/tracker"
)

// Command results used as metric labels.
const (
	resultOK           = "ok"
	resultInvalid      = "invalid"
	resultNotFound     = "not_found"
	resultPrecondition = "precondition"
	resultPersist      = "persist_error"
	resultError        = "error"
)

// Prometheus metrics.
var (
	trackerItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_items",
			Help: "Number of tracked items",
		},
	)

	trackerTotalQuantity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_total_quantity",
			Help: "Sum of the quantity of all tracked items",
		},
	)

	trackerCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_commands_total",
			Help: "Total number of controller commands by result",
		},
		[]string{"command", "result"},
	)
)

func commandResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrPersist):
		return resultPersist
	case errors.Is(err, tracker.ErrValidation):
		return resultInvalid
	case errors.Is(err, tracker.ErrNotFound):
		return resultNotFound
	case errors.Is(err, tracker.ErrNoCurrentItem):
		return resultPrecondition
	default:
		return resultError
	}
}

func observe(command string, err error, store *tracker.Store) {
	trackerCommandsTotal.WithLabelValues(command, commandResult(err)).Inc()
	trackerItems.Set(float64(store.Len()))
	trackerTotalQuantity.Set(float64(store.Total()))
}
