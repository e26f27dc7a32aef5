// Package metrics exports flow and delivery counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"auto_social_publisher/compose"
)

const namespace = "social_publisher"

// Metrics implements compose.Observer.
type Metrics struct {
	flows      *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	menu       *prometheus.CounterVec
}

// New registers the collectors with reg (the default registerer when nil).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_total",
			Help:      "Composer flows by kind and outcome.",
		}, []string{"kind", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Sink calls by kind, operation and status.",
		}, []string{"kind", "op", "status"}),
		menu: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menu_choices_total",
			Help:      "Top-level menu choices.",
		}, []string{"choice"}),
	}
	for _, c := range []**prometheus.CounterVec{&m.flows, &m.deliveries, &m.menu} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// register reuses an identical collector already known to reg.
func register(reg prometheus.Registerer, c **prometheus.CounterVec) error {
	err := reg.Register(*c)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("register metrics: %w", err)
		}
		*c = existing
		return nil
	}
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	return nil
}

func (m *Metrics) FlowFinished(kind string, outcome compose.Outcome) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(kind, outcome.String()).Inc()
}

func (m *Metrics) DeliveryAttempt(kind, op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case compose.IsDelivery(err):
		status = "rejected"
	default:
		status = "error"
	}
	m.deliveries.WithLabelValues(kind, op, status).Inc()
}

// MenuChoice counts one top-level menu selection.
func (m *Metrics) MenuChoice(choice string) {
	if m == nil {
		return
	}
	m.menu.WithLabelValues(choice).Inc()
}
