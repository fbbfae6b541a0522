// Package alerting notifies operators about removal events the cleanup
// worker gave up on.
package alerting

import (
	"context"

	"github.com/dmitrijs2005/securedrop/internal/logging"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "securedrop_cleanup_dead_lettered_total",
	Help: "Removal events parked after exhausting their attempts, by reason",
}, []string{"reason"})

// Alerter is told about every dead-lettered removal event. The blob behind
// it is still in the object store and needs manual attention.
type Alerter interface {
	Alert(ctx context.Context, ev models.RemovalEvent, cause string)
}

// LogAlerter reports dead letters as error logs and a Prometheus counter,
// which is what the alert rules fire on.
type LogAlerter struct {
	log logging.Logger
}

func NewLogAlerter(log logging.Logger) *LogAlerter {
	return &LogAlerter{log: log.With("component", "alerting")}
}

func (a *LogAlerter) Alert(ctx context.Context, ev models.RemovalEvent, cause string) {
	deadLetteredTotal.WithLabelValues(string(ev.Reason)).Inc()
	a.log.Error(ctx, "blob cleanup dead-lettered",
		"seq", ev.Seq,
		"file_id", ev.ShareID,
		"storage_ref", ev.StorageRef,
		"reason", string(ev.Reason),
		"attempts", ev.Attempts,
		"error", cause,
	)
}
