// Package wireless_switcher moves a WiFi WAN from one network to another and
// restores the previous association when the new one does not come up.
package wireless_switcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/metrics"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wpa_control"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval  = 3 * time.Second
	DefaultSwitchTimeout = 15 * time.Second
)

// Switcher serializes association switches across all interfaces.
type Switcher struct {
	mu sync.Mutex

	interfaces   InterfaceResolver
	controls     ControlFactory
	pollInterval time.Duration
	timeout      time.Duration
	metrics      *metrics.Collector
}

// Option configures a Switcher.
type Option func(*Switcher)

// WithPolling overrides the association poll interval and timeout.
func WithPolling(interval, timeout time.Duration) Option {
	return func(s *Switcher) {
		if interval > 0 {
			s.pollInterval = interval
		}
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithMetrics records switch outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Switcher) {
		s.metrics = c
	}
}

// New creates a Switcher.
func New(interfaces InterfaceResolver, controls ControlFactory, opts ...Option) *Switcher {
	s := &Switcher{
		interfaces:   interfaces,
		controls:     controls,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultSwitchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SwitchAssociation associates interfaceID with ssid. params are network
// parameters (psk, key_mgmt, ...) applied to the target network in key order.
// The returned list is empty on success. Only one switch runs at a time; a
// concurrent call waits for the running one to finish.
//
// Cancelling ctx does not abort a switch that has started.
func (s *Switcher) SwitchAssociation(ctx context.Context, interfaceID, ssid string, params map[string]string) []string {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	errs, outcome := s.switchLocked(ctx, interfaceID, ssid, params)
	label := interfaceID
	if s.interfaces.Interface(interfaceID) == nil {
		label = metrics.UnknownInterface
	}
	s.metrics.ObserveSwitch(label, outcome, time.Since(start))
	return errs
}

func (s *Switcher) switchLocked(ctx context.Context, interfaceID, ssid string, params map[string]string) ([]string, string) {
	log := logger.WithFields(logrus.Fields{
		"interface": interfaceID,
		"ssid":      ssid,
	})

	iface := s.interfaces.Interface(interfaceID)
	if iface == nil {
		return []string{fmt.Sprintf("Interface %s is not found", interfaceID)}, metrics.SwitchPrecondition
	}
	if !iface.Enabled {
		return []string{fmt.Sprintf("Interface %s is not enabled", interfaceID)}, metrics.SwitchPrecondition
	}
	if !iface.IsWAN() {
		return []string{fmt.Sprintf("Interface %s is not a WAN interface", interfaceID)}, metrics.SwitchPrecondition
	}
	if !iface.WpaSupplicant {
		return []string{fmt.Sprintf("wpa_supplicant is not configured on %s", interfaceID)}, metrics.SwitchPrecondition
	}

	ctrl := s.controls(interfaceID)

	networks := ctrl.ListNetworks(ctx)
	var previous, target *wpa_control.KnownNetwork
	for i := range networks {
		if previous == nil && networks[i].IsCurrent() {
			previous = &networks[i]
		}
		if target == nil && networks[i].SSID == ssid {
			target = &networks[i]
		}
	}

	targetID := ""
	if target != nil {
		targetID = target.ID
	} else {
		id, err := ctrl.AddNetwork(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to add network")
			return []string{fmt.Sprintf("Failed to add new network %s", ssid)}, metrics.SwitchCommandFailure
		}
		targetID = id
		log.WithField("network_id", id).Info("Added network")
	}

	settings := make(map[string]string, len(params)+1)
	for k, v := range params {
		settings[k] = v
	}
	if _, ok := settings["ssid"]; !ok {
		settings["ssid"] = ssid
	}
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := ctrl.SetNetwork(ctx, targetID, key, settings[key]); err != nil {
			log.WithError(err).WithField("param", key).Error("Failed to set network parameter")
			return []string{err.Error()}, metrics.SwitchCommandFailure
		}
	}

	if err := ctrl.SelectNetwork(ctx, targetID); err != nil {
		log.WithError(err).Error("Failed to select network")
		return []string{err.Error()}, metrics.SwitchCommandFailure
	}

	if s.waitForCompletion(ctx, ctrl) {
		log.Info("Switched association")
		// select_network disabled every other network
		for _, n := range networks {
			if n.ID != targetID && !n.IsDisabled() {
				s.enable(ctx, ctrl, n.ID)
			}
		}
		return []string{}, metrics.SwitchSuccess
	}

	log.WithField("timeout", s.timeout).Warn("Association did not complete, reverting")
	restored := ""
	if previous != nil {
		restored = previous.ID
		if err := ctrl.SelectNetwork(ctx, previous.ID); err != nil {
			log.WithError(err).WithField("network_id", previous.ID).Error("Failed to reselect previous network")
		}
	} else if err := ctrl.DisableNetwork(ctx, targetID); err != nil {
		log.WithError(err).WithField("network_id", targetID).Error("Failed to disable network")
	}
	// The target stays disabled even when it was enabled before the switch
	for _, n := range networks {
		if n.ID != targetID && n.ID != restored && !n.IsDisabled() {
			s.enable(ctx, ctrl, n.ID)
		}
	}
	return []string{fmt.Sprintf("Failed to switch to %s", ssid)}, metrics.SwitchTimeout
}

// waitForCompletion polls the association state until it completes or the
// timeout elapses.
func (s *Switcher) waitForCompletion(ctx context.Context, ctrl AssociationControl) bool {
	deadline := time.Now().Add(s.timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if ctrl.Completed(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
	return false
}

func (s *Switcher) enable(ctx context.Context, ctrl AssociationControl, id string) {
	if err := ctrl.EnableNetwork(ctx, id); err != nil {
		logger.WithError(err).WithField("network_id", id).Warn("Failed to re-enable network")
	}
}
