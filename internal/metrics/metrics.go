// Package metrics exposes connection lifecycle counters.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joacominatel/minaconn/internal/database"
)

// Outcomes recorded for connect and disconnect operations.
const (
	OutcomeStarted = "started"
	OutcomeNoop    = "noop"
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Collector records lifecycle operations of connection handles.
type Collector interface {
	ObserveConnect(outcome string)
	ObserveDisconnect(outcome string)
	SetState(handle string, state database.ReadyState)

	// Forget drops the state series of a handle that no longer holds a
	// connection.
	Forget(handle string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObserveConnect(string)                {}
func (noopCollector) ObserveDisconnect(string)             {}
func (noopCollector) SetState(string, database.ReadyState) {}
func (noopCollector) Forget(string)                        {}

// PrometheusCollector exposes lifecycle metrics via Prometheus.
type PrometheusCollector struct {
	connects    *prometheus.CounterVec
	disconnects *prometheus.CounterVec
	state       *prometheus.GaugeVec
}

// NewPrometheusCollector registers the lifecycle metrics with reg.
// Metrics already registered by an earlier collector are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	connects, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minaconn_connect_total",
		Help: "Connect operations by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	disconnects, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minaconn_disconnect_total",
		Help: "Disconnect operations by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	state, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "minaconn_connection_state",
		Help: "Ready state code reported by each handle's connection.",
	}, []string{"handle"}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{connects: connects, disconnects: disconnects, state: state}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// ObserveConnect counts a connect operation.
func (c *PrometheusCollector) ObserveConnect(outcome string) {
	c.connects.WithLabelValues(outcome).Inc()
}

// ObserveDisconnect counts a disconnect operation.
func (c *PrometheusCollector) ObserveDisconnect(outcome string) {
	c.disconnects.WithLabelValues(outcome).Inc()
}

// SetState records the ready state code for a handle.
func (c *PrometheusCollector) SetState(handle string, state database.ReadyState) {
	c.state.WithLabelValues(handle).Set(float64(state))
}

// Forget removes the state series for a handle.
func (c *PrometheusCollector) Forget(handle string) {
	c.state.DeleteLabelValues(handle)
}
