// Package wan_liveness probes WAN uplinks and aggregates their liveness.
package wan_liveness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/interface_directory"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Aggregator runs liveness probes and remembers when each WAN was last probed.
type Aggregator struct {
	directory interface_directory.Directory
	policy    Policy
	metrics   *metrics.Collector
	now       func() time.Time

	mu        sync.RWMutex
	lastProbe map[string]int64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetrics records probe outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Aggregator) {
		a.metrics = c
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an Aggregator over directory.
func NewAggregator(directory interface_directory.Directory, policy Policy, opts ...Option) *Aggregator {
	a := &Aggregator{
		directory: directory,
		policy:    policy,
		now:       time.Now,
		lastProbe: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Probe checks DNS and HTTP reachability through iface.
func (a *Aggregator) Probe(ctx context.Context, iface string, opts ProbeOptions) (*ProbeResult, error) {
	plugin := a.directory.Plugin(iface)
	if plugin == nil {
		return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, iface)
	}
	if !plugin.IsWAN() {
		return nil, fmt.Errorf("%w: %s", ErrNotWAN, iface)
	}

	probeCount := opts.ProbeCount
	if probeCount < 1 {
		probeCount = 1
	}
	dnsOK, err := plugin.CheckWanConnectivity(ctx, a.policy.Resolvers, a.policy.MinSuccess,
		a.policy.DNSTimeout, a.policy.ProbeHost, interface_directory.CheckOptions{ProbeCount: probeCount})
	if err != nil {
		return nil, fmt.Errorf("connectivity check on %s failed: %w", iface, err)
	}

	sites := opts.HTTPSites
	if len(sites) == 0 {
		sites = a.policy.HTTPSites
	}
	var status HTTPStatus
	for _, site := range sites {
		if code := plugin.CheckHttpStatus(ctx, site); code != "" {
			status = HTTPStatus(code)
			break
		}
	}

	result := &ProbeResult{
		DNS:  dnsOK != nil && *dnsOK,
		HTTP: status,
		TS:   a.now().Unix(),
	}

	a.mu.Lock()
	a.lastProbe[iface] = result.TS
	a.mu.Unlock()

	a.metrics.ObserveProbe(iface, result.DNS, string(result.HTTP), result.TS)
	logger.WithFields(logrus.Fields{
		"interface": iface,
		"dns":       result.DNS,
		"http":      result.HTTP,
	}).Debug("WAN probed")
	return result, nil
}

// LastProbeTimes returns a copy of the per-interface last probe times.
func (a *Aggregator) LastProbeTimes() map[string]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int64, len(a.lastProbe))
	for k, v := range a.lastProbe {
		out[k] = v
	}
	return out
}

// Aggregate reports the liveness of every WAN known to the routing layer. It
// returns nil when no routing information is available. With opts.Live every
// WAN is probed concurrently and the call returns when all probes finish.
func (a *Aggregator) Aggregate(ctx context.Context, opts AggregateOptions) (*OverallStatus, error) {
	routing := a.directory.Routing()
	if routing == nil {
		return nil, nil
	}
	view := routing.CurrentWanLivenessView()
	if view == nil {
		return nil, nil
	}
	if len(view.WANs) == 0 {
		return &OverallStatus{Connected: view.Connected, WANs: view.WANs}, nil
	}

	wans := make(map[string]any, len(view.WANs))
	if !opts.Live {
		for name := range view.WANs {
			var status any
			if plugin := a.directory.Plugin(name); plugin != nil {
				status = plugin.GetWanStatus()
			}
			wans[name] = status
		}
		return &OverallStatus{Connected: view.Connected, WANs: wans}, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name := range view.WANs {
		name := name
		g.Go(func() error {
			result, err := a.Probe(gctx, name, ProbeOptions{})
			if err != nil {
				return err
			}
			mu.Lock()
			wans[name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &OverallStatus{Connected: view.Connected, WANs: wans}, nil
}
