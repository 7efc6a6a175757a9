// Package network_config applies network documents transactionally: a
// failed apply is rolled back to the previous document, and accepted
// documents are persisted with a debounced flush to disk.
package network_config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/config_store"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/executor"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/metrics"
	"github.com/bep/debounce"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFlushDelay = 3 * time.Second
	flushTimeout      = 30 * time.Second
)

// Manager validates, applies and persists network documents.
type Manager struct {
	store       config_store.Store
	key         string
	applier     Applier
	defaultPath string
	runner      executor.Runner
	metrics     *metrics.Collector

	flushDelay time.Duration
	debounced  func(f func())
}

// Option configures a Manager.
type Option func(*Manager)

// WithStoreKey sets the key the document is stored under.
func WithStoreKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.key = key
		}
	}
}

// WithDefaultConfigPath sets the file holding the platform default document.
func WithDefaultConfigPath(path string) Option {
	return func(m *Manager) {
		m.defaultPath = path
	}
}

// WithFlushDelay sets the quiet period before a persisted document is flushed.
func WithFlushDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.flushDelay = d
		}
	}
}

// WithSyncRunner runs sync through r after every flush.
func WithSyncRunner(r executor.Runner) Option {
	return func(m *Manager) {
		m.runner = r
	}
}

// WithMetrics records apply outcomes and flushes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// NewManager creates a Manager.
func NewManager(store config_store.Store, applier Applier, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		key:        config_manager.DefaultNetworkConfigKey,
		applier:    applier,
		flushDelay: DefaultFlushDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.debounced = debounce.New(m.flushDelay)
	return m
}

// Validate checks doc without touching the system.
func (m *Manager) Validate(doc []byte) []string {
	return Validate(doc)
}

// ActiveConfig returns the persisted document, or nil when none is stored or
// the stored one cannot be parsed.
func (m *Manager) ActiveConfig(ctx context.Context) ([]byte, error) {
	data, err := m.store.Get(ctx, m.key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		logger.WithField("key", m.key).Warn("Stored network config is not valid JSON, ignoring it")
		return nil, nil
	}
	return data, nil
}

// DefaultConfig returns the platform default document.
func (m *Manager) DefaultConfig() ([]byte, error) {
	if m.defaultPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.defaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read default network config: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("default network config %s is not valid JSON", m.defaultPath)
	}
	return data, nil
}

// CurrentConfig returns the active document, falling back to the default.
func (m *Manager) CurrentConfig(ctx context.Context) []byte {
	current, err := m.ActiveConfig(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to load active network config")
	}
	if current != nil {
		return current
	}
	current, err = m.DefaultConfig()
	if err != nil {
		logger.WithError(err).Warn("Failed to load default network config")
	}
	return current
}

// previousConfig returns the document a failed apply rolls back to. Only an
// absent active document falls back to the default; a store failure is an
// error.
func (m *Manager) previousConfig(ctx context.Context) ([]byte, error) {
	active, err := m.ActiveConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active network config: %w", err)
	}
	if active != nil {
		return active, nil
	}
	return m.DefaultConfig()
}

// Apply applies doc. When the apply reports problems and dryRun is false the
// previously active document is applied again before the problems are
// returned. Rollback failures are only logged. Nothing is applied when the
// previous document cannot be determined.
func (m *Manager) Apply(ctx context.Context, doc []byte, dryRun bool) []string {
	previous, err := m.previousConfig(ctx)
	if err != nil {
		logger.WithError(err).Error("Refusing to apply network config")
		m.metrics.ObserveApply(metrics.ApplyAborted)
		return []string{err.Error()}
	}

	errs := m.apply(ctx, doc, dryRun)
	if len(errs) == 0 {
		if !dryRun {
			m.metrics.ObserveApply(metrics.ApplyOK)
		}
		return errs
	}

	if dryRun {
		m.metrics.ObserveApply(metrics.ApplyDryRunFailed)
		return errs
	}

	logger.WithField("errors", errs).Error("Failed to apply network config, rolling back")
	if previous == nil {
		logger.Error("No previous network config to roll back to")
		m.metrics.ObserveApply(metrics.ApplyRollbackFailed)
		return errs
	}
	if rollbackErrs := m.apply(ctx, previous, false); len(rollbackErrs) > 0 {
		logger.WithField("errors", rollbackErrs).Error("Failed to roll back network config")
		m.metrics.ObserveApply(metrics.ApplyRollbackFailed)
	} else {
		m.metrics.ObserveApply(metrics.ApplyRolledBack)
	}
	return errs
}

func (m *Manager) apply(ctx context.Context, doc []byte, dryRun bool) []string {
	errs, err := m.applier.Apply(ctx, doc, dryRun)
	if err != nil {
		return []string{err.Error()}
	}
	return errs
}

// Persist stores doc as the active document and schedules a flush. Calls
// arriving within the flush delay of each other share one flush. An empty
// doc is ignored.
func (m *Manager) Persist(ctx context.Context, doc []byte) error {
	if len(doc) == 0 {
		return nil
	}
	var compact json.RawMessage
	if err := json.Unmarshal(doc, &compact); err != nil {
		return fmt.Errorf("network config is not valid JSON: %w", err)
	}
	data, err := json.Marshal(compact)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, m.key, data); err != nil {
		return fmt.Errorf("failed to save network config: %w", err)
	}
	m.debounced(m.flush)
	return nil
}

func (m *Manager) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := m.store.Flush(ctx)
	if err == nil && m.runner != nil {
		err = executor.Sync(ctx, m.runner)
	}
	m.metrics.ObserveFlush(err)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{"key": m.key}).Error("Background save returned error")
		return
	}
	logger.WithField("key", m.key).Debug("Network config flushed to disk")
}
