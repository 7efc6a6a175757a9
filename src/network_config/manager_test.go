package network_config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory config_store.Store that counts flushes.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    int
	flushes atomic.Int32
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.data[key], nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.data[key] = value
	return nil
}

func (s *memStore) Flush(ctx context.Context) error {
	s.flushes.Add(1)
	return nil
}

func (s *memStore) Close() error { return nil }

// MockApplier is a mock implementation of Applier for testing
type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) Apply(ctx context.Context, doc []byte, dryRun bool) ([]string, error) {
	args := m.Called(string(doc), dryRun)
	var errs []string
	if v := args.Get(0); v != nil {
		errs = v.([]string)
	}
	return errs, args.Error(1)
}

const (
	activeDoc    = `{"interface":{"phy":{"eth0":{"ipv4":"192.168.1.1/24"}}}}`
	candidateDoc = `{"interface":{"phy":{"eth0":{"ipv4":"10.0.0.1/24"}}}}`
	defaultDoc   = `{"interface":{"phy":{"eth0":{"enabled":true}}}}`
)

func newTestManager(t *testing.T, store *memStore, applier Applier, opts ...Option) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network_default.json")
	require.NoError(t, os.WriteFile(path, []byte(defaultDoc), 0644))
	opts = append([]Option{WithDefaultConfigPath(path), WithFlushDelay(20 * time.Millisecond)}, opts...)
	return NewManager(store, applier, opts...)
}

func TestApplySuccess(t *testing.T) {
	store := newMemStore()
	store.data[config_manager.DefaultNetworkConfigKey] = []byte(activeDoc)
	applier := new(MockApplier)
	applier.On("Apply", candidateDoc, false).Return(nil, nil).Once()
	m := newTestManager(t, store, applier)

	errs := m.Apply(context.Background(), []byte(candidateDoc), false)

	assert.Empty(t, errs)
	applier.AssertExpectations(t)
	applier.AssertNumberOfCalls(t, "Apply", 1)
}

func TestApplyFailureRollsBackToActive(t *testing.T) {
	store := newMemStore()
	store.data[config_manager.DefaultNetworkConfigKey] = []byte(activeDoc)
	applier := new(MockApplier)
	applier.On("Apply", candidateDoc, false).Return([]string{"eth0 is busy"}, nil).Once()
	applier.On("Apply", activeDoc, false).Return(nil, nil).Once()
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	m := newTestManager(t, store, applier, WithMetrics(collector))

	errs := m.Apply(context.Background(), []byte(candidateDoc), false)

	assert.Equal(t, []string{"eth0 is busy"}, errs)
	applier.AssertExpectations(t)
	last := applier.Calls[len(applier.Calls)-1]
	assert.Equal(t, activeDoc, last.Arguments.String(0))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ApplyOutcomes.WithLabelValues(metrics.ApplyRolledBack)))
}

func TestApplyFailureRollsBackToDefault(t *testing.T) {
	applier := new(MockApplier)
	applier.On("Apply", candidateDoc, false).Return([]string{"bad"}, nil).Once()
	applier.On("Apply", defaultDoc, false).Return(nil, nil).Once()
	m := newTestManager(t, newMemStore(), applier)

	errs := m.Apply(context.Background(), []byte(candidateDoc), false)

	assert.Equal(t, []string{"bad"}, errs)
	applier.AssertExpectations(t)
}

func TestApplyRollbackFailureKeepsOriginalErrors(t *testing.T) {
	store := newMemStore()
	store.data[config_manager.DefaultNetworkConfigKey] = []byte(activeDoc)
	applier := new(MockApplier)
	applier.On("Apply", candidateDoc, false).Return([]string{"first"}, nil).Once()
	applier.On("Apply", activeDoc, false).Return([]string{"rollback broke"}, nil).Once()
	m := newTestManager(t, store, applier)

	errs := m.Apply(context.Background(), []byte(candidateDoc), false)

	assert.Equal(t, []string{"first"}, errs)
}

func TestApplyAbortsWhenActiveConfigUnreadable(t *testing.T) {
	store := newMemStore()
	store.data[config_manager.DefaultNetworkConfigKey] = []byte(activeDoc)
	store.getErr = errors.New("connection refused")
	applier := new(MockApplier)
	applier.On("Apply", candidateDoc, false).Return([]string{"bad"}, nil)
	applier.On("Apply", defaultDoc, false).Return(nil, nil)
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	m := newTestManager(t, store, applier, WithMetrics(collector))

	errs := m.Apply(context.Background(), []byte(candidateDoc), false)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "connection refused")
	applier.AssertNotCalled(t, "Apply", candidateDoc, false)
	applier.AssertNotCalled(t, "Apply", defaultDoc, false)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ApplyOutcomes.WithLabelValues(metrics.ApplyAborted)))
}

func TestApplyAbortsWhenDefaultConfigUnreadable(t *testing.T) {
	applier := new(MockApplier)
	m := NewManager(newMemStore(), applier, WithDefaultConfigPath(filepath.Join(t.TempDir(), "missing.json")))

	errs := m.Apply(context.Background(), []byte(candidateDoc), false)

	require.Len(t, errs, 1)
	applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestApplierErrorBecomesErrorList(t *testing.T) {
	applier := new(MockApplier)
	applier.On("Apply", candidateDoc, false).Return(nil, errors.New("setup not installed")).Once()
	applier.On("Apply", defaultDoc, false).Return(nil, nil).Once()
	m := newTestManager(t, newMemStore(), applier)

	errs := m.Apply(context.Background(), []byte(candidateDoc), false)

	assert.Equal(t, []string{"setup not installed"}, errs)
}

func TestDryRunNeverRollsBackOrStores(t *testing.T) {
	store := newMemStore()
	store.data[config_manager.DefaultNetworkConfigKey] = []byte(activeDoc)
	applier := new(MockApplier)
	applier.On("Apply", candidateDoc, true).Return([]string{"would fail"}, nil).Once()
	m := newTestManager(t, store, applier)

	errs := m.Apply(context.Background(), []byte(candidateDoc), true)

	assert.Equal(t, []string{"would fail"}, errs)
	applier.AssertNumberOfCalls(t, "Apply", 1)
	assert.Zero(t, store.sets)
	assert.Equal(t, activeDoc, string(store.data[config_manager.DefaultNetworkConfigKey]))
}

func TestActiveConfig(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, new(MockApplier))

	doc, err := m.ActiveConfig(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)

	store.data[config_manager.DefaultNetworkConfigKey] = []byte(`{broken`)
	doc, err = m.ActiveConfig(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)

	store.getErr = errors.New("connection refused")
	_, err = m.ActiveConfig(context.Background())
	assert.Error(t, err)
	assert.JSONEq(t, defaultDoc, string(m.CurrentConfig(context.Background())))
}

func TestDefaultConfig(t *testing.T) {
	m := newTestManager(t, newMemStore(), new(MockApplier))

	doc, err := m.DefaultConfig()
	require.NoError(t, err)
	assert.JSONEq(t, defaultDoc, string(doc))

	m = NewManager(newMemStore(), new(MockApplier), WithDefaultConfigPath(filepath.Join(t.TempDir(), "missing.json")))
	_, err = m.DefaultConfig()
	assert.Error(t, err)
}

func TestPersistStoresCompactDocument(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, new(MockApplier), WithStoreKey("test:network"))

	require.NoError(t, m.Persist(context.Background(), []byte("{\n  \"interface\": {}\n}")))

	assert.Equal(t, `{"interface":{}}`, string(store.data["test:network"]))
	assert.Error(t, m.Persist(context.Background(), []byte(`{nope`)))
	assert.NoError(t, m.Persist(context.Background(), nil))
	assert.Equal(t, 1, store.sets)
}

func TestPersistDebouncesFlush(t *testing.T) {
	store := newMemStore()
	var synced atomic.Int32
	runner := new(MockRunner)
	runner.On("Run", "sync").Run(func(mock.Arguments) { synced.Add(1) }).Return("", nil)
	m := newTestManager(t, store, new(MockApplier), WithSyncRunner(runner))

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Persist(context.Background(), []byte(activeDoc)))
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return store.flushes.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), store.flushes.Load())
	assert.Equal(t, int32(1), synced.Load())
}

func TestValidateMethod(t *testing.T) {
	m := newTestManager(t, newMemStore(), new(MockApplier))

	assert.Nil(t, m.Validate([]byte(activeDoc)))
	assert.Equal(t, []string{"config is not defined"}, m.Validate(nil))
}
