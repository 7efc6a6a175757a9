// Package metrics exposes Prometheus collectors for network transitions.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Switch outcomes.
const (
	SwitchSuccess        = "success"
	SwitchPrecondition   = "precondition_failed"
	SwitchCommandFailure = "command_failed"
	SwitchTimeout        = "timeout"
)

// UnknownInterface labels switch attempts on interfaces missing from the
// network config.
const UnknownInterface = "unknown"

// Apply outcomes.
const (
	ApplyOK             = "ok"
	ApplyDryRunFailed   = "dry_run_failed"
	ApplyRolledBack     = "rolled_back"
	ApplyRollbackFailed = "rollback_failed"
	ApplyAborted        = "aborted"
)

// Collector holds the daemon's metrics. A nil *Collector records nothing.
type Collector struct {
	SwitchAttempts  *prometheus.CounterVec
	SwitchDurations *prometheus.HistogramVec
	ApplyOutcomes   *prometheus.CounterVec
	StoreFlushes    *prometheus.CounterVec
	WanProbes       *prometheus.CounterVec
	WanLastProbe    *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the collectors with reg, or with the default
// registry when reg is nil. Registering twice returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	c := &Collector{}

	if c.SwitchAttempts, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconfig_wifi_switch_total",
		Help: "WiFi association switch attempts by outcome.",
	}, []string{"interface", "outcome"}), "netconfig_wifi_switch_total"); err != nil {
		return nil, err
	}

	if c.SwitchDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netconfig_wifi_switch_duration_seconds",
		Help:    "Time spent holding the association switch lock.",
		Buckets: []float64{0.1, 1, 3, 6, 9, 12, 15, 20, 30},
	}, []string{"outcome"}), "netconfig_wifi_switch_duration_seconds"); err != nil {
		return nil, err
	}

	if c.ApplyOutcomes, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconfig_config_apply_total",
		Help: "Network configuration applies by outcome.",
	}, []string{"outcome"}), "netconfig_config_apply_total"); err != nil {
		return nil, err
	}

	if c.StoreFlushes, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconfig_store_flush_total",
		Help: "Background flushes of the configuration store by result.",
	}, []string{"result"}), "netconfig_store_flush_total"); err != nil {
		return nil, err
	}

	if c.WanProbes, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconfig_wan_probe_total",
		Help: "WAN liveness probes by interface and result.",
	}, []string{"interface", "result"}), "netconfig_wan_probe_total"); err != nil {
		return nil, err
	}

	if c.WanLastProbe, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netconfig_wan_last_probe_timestamp_seconds",
		Help: "Unix time of the last liveness probe per WAN.",
	}, []string{"interface"}), "netconfig_wan_last_probe_timestamp_seconds"); err != nil {
		return nil, err
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c, nil
}

// Handler exposes the collectors on /metrics.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSwitch records one switch attempt.
func (c *Collector) ObserveSwitch(iface, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.SwitchAttempts.WithLabelValues(iface, outcome).Inc()
	c.SwitchDurations.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveApply records the outcome of a configuration apply.
func (c *Collector) ObserveApply(outcome string) {
	if c == nil {
		return
	}
	c.ApplyOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveFlush records a background store flush.
func (c *Collector) ObserveFlush(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.StoreFlushes.WithLabelValues(result).Inc()
}

// ObserveProbe records a liveness probe and its timestamp.
func (c *Collector) ObserveProbe(iface string, dns bool, http string, ts int64) {
	if c == nil {
		return
	}
	result := "down"
	switch {
	case dns && http != "":
		result = "up"
	case dns:
		result = "dns_only"
	case http != "":
		result = "http_only"
	}
	c.WanProbes.WithLabelValues(iface, result).Inc()
	c.WanLastProbe.WithLabelValues(iface).Set(float64(ts))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
