package wireless_switcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/interface_directory"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/metrics"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wpa_control"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockControl is a mock implementation of AssociationControl for testing
type MockControl struct {
	mock.Mock
}

func (m *MockControl) ListNetworks(ctx context.Context) []wpa_control.KnownNetwork {
	args := m.Called()
	return args.Get(0).([]wpa_control.KnownNetwork)
}

func (m *MockControl) AddNetwork(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockControl) SetNetwork(ctx context.Context, id, key, value string) error {
	args := m.Called(id, key, value)
	return args.Error(0)
}

func (m *MockControl) SelectNetwork(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockControl) EnableNetwork(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockControl) DisableNetwork(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockControl) Completed(ctx context.Context) bool {
	args := m.Called()
	return args.Bool(0)
}

type staticInterfaces map[string]*interface_directory.Interface

func (s staticInterfaces) Interface(name string) *interface_directory.Interface {
	return s[name]
}

var testInterfaces = staticInterfaces{
	"wlan0": {Name: "wlan0", Type: interface_directory.TypeWAN, Enabled: true, WpaSupplicant: true},
	"wlan1": {Name: "wlan1", Type: interface_directory.TypeWAN, Enabled: false, WpaSupplicant: true},
	"eth1":  {Name: "eth1", Type: interface_directory.TypeLAN, Enabled: true},
	"eth0":  {Name: "eth0", Type: interface_directory.TypeWAN, Enabled: true},
}

var homeNetworks = []wpa_control.KnownNetwork{
	{ID: "0", SSID: "Home", Flags: "[CURRENT]"},
	{ID: "1", SSID: "Cafe", Flags: "[DISABLED]"},
	{ID: "2", SSID: "Office"},
}

func newTestSwitcher(ctrl AssociationControl, opened *int, opts ...Option) *Switcher {
	opts = append([]Option{WithPolling(5*time.Millisecond, 40*time.Millisecond)}, opts...)
	return New(testInterfaces, func(iface string) AssociationControl {
		if opened != nil {
			*opened++
		}
		return ctrl
	}, opts...)
}

func TestSwitchPreconditions(t *testing.T) {
	tests := []struct {
		iface string
		want  string
	}{
		{"wlan9", "Interface wlan9 is not found"},
		{"wlan1", "Interface wlan1 is not enabled"},
		{"eth1", "Interface eth1 is not a WAN interface"},
		{"eth0", "wpa_supplicant is not configured on eth0"},
	}
	for _, tt := range tests {
		t.Run(tt.iface, func(t *testing.T) {
			ctrl := new(MockControl)
			opened := 0
			s := newTestSwitcher(ctrl, &opened)

			errs := s.SwitchAssociation(context.Background(), tt.iface, "Office", nil)

			assert.Equal(t, []string{tt.want}, errs)
			assert.Zero(t, opened)
			ctrl.AssertNotCalled(t, "ListNetworks")
		})
	}
}

func TestSwitchUnknownInterfaceMetricLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	ctrl := new(MockControl)
	s := newTestSwitcher(ctrl, nil, WithMetrics(collector))

	s.SwitchAssociation(context.Background(), "wlan-bogus-1", "Office", nil)
	s.SwitchAssociation(context.Background(), "wlan-bogus-2", "Office", nil)
	s.SwitchAssociation(context.Background(), "eth1", "Office", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.SwitchAttempts.WithLabelValues(metrics.UnknownInterface, metrics.SwitchPrecondition)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SwitchAttempts.WithLabelValues("eth1", metrics.SwitchPrecondition)))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.SwitchAttempts))
	ctrl.AssertNotCalled(t, "ListNetworks")
}

func TestSwitchToKnownNetwork(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return(homeNetworks)
	ctrl.On("SetNetwork", "2", "key_mgmt", "WPA-PSK").Return(nil).Once()
	ctrl.On("SetNetwork", "2", "psk", "secret").Return(nil).Once()
	ctrl.On("SetNetwork", "2", "ssid", "Office").Return(nil).Once()
	ctrl.On("SelectNetwork", "2").Return(nil).Once()
	ctrl.On("Completed").Return(false).Once()
	ctrl.On("Completed").Return(true).Once()
	ctrl.On("EnableNetwork", "0").Return(nil).Once()
	s := newTestSwitcher(ctrl, nil)

	errs := s.SwitchAssociation(context.Background(), "wlan0", "Office", map[string]string{
		"psk":      "secret",
		"key_mgmt": "WPA-PSK",
	})

	assert.Empty(t, errs)
	ctrl.AssertExpectations(t)
	ctrl.AssertNotCalled(t, "AddNetwork")
	ctrl.AssertNotCalled(t, "EnableNetwork", "1")
	ctrl.AssertNotCalled(t, "EnableNetwork", "2")

	var setKeys []string
	for _, call := range ctrl.Calls {
		if call.Method == "SetNetwork" {
			setKeys = append(setKeys, call.Arguments.String(1))
		}
	}
	assert.Equal(t, []string{"key_mgmt", "psk", "ssid"}, setKeys)
}

func TestSwitchKeepsCallerSSIDParam(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return([]wpa_control.KnownNetwork{})
	ctrl.On("AddNetwork").Return("5", nil)
	ctrl.On("SetNetwork", "5", "ssid", `"Lab 5G"`).Return(nil).Once()
	ctrl.On("SelectNetwork", "5").Return(nil)
	ctrl.On("Completed").Return(true)
	s := newTestSwitcher(ctrl, nil)
	params := map[string]string{"ssid": `"Lab 5G"`}

	errs := s.SwitchAssociation(context.Background(), "wlan0", "Lab", params)

	assert.Empty(t, errs)
	ctrl.AssertExpectations(t)
	assert.Equal(t, map[string]string{"ssid": `"Lab 5G"`}, params)
}

func TestSwitchAddsUnknownNetwork(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return(homeNetworks)
	ctrl.On("AddNetwork").Return("3", nil)
	ctrl.On("SetNetwork", "3", "ssid", "Guest").Return(nil)
	ctrl.On("SelectNetwork", "3").Return(nil)
	ctrl.On("Completed").Return(true)
	ctrl.On("EnableNetwork", mock.Anything).Return(nil)
	s := newTestSwitcher(ctrl, nil)

	errs := s.SwitchAssociation(context.Background(), "wlan0", "Guest", nil)

	assert.Empty(t, errs)
	ctrl.AssertCalled(t, "EnableNetwork", "0")
	ctrl.AssertCalled(t, "EnableNetwork", "2")
	ctrl.AssertNumberOfCalls(t, "EnableNetwork", 2)
}

func TestSwitchAddNetworkFailure(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return(homeNetworks)
	ctrl.On("AddNetwork").Return("", errors.New("FAIL"))
	s := newTestSwitcher(ctrl, nil)

	errs := s.SwitchAssociation(context.Background(), "wlan0", "Guest", nil)

	assert.Equal(t, []string{"Failed to add new network Guest"}, errs)
	ctrl.AssertNotCalled(t, "SetNetwork", mock.Anything, mock.Anything, mock.Anything)
	ctrl.AssertNotCalled(t, "SelectNetwork", mock.Anything)
}

func TestSwitchParamFailureAborts(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return(homeNetworks)
	ctrl.On("SetNetwork", "2", "psk", "short").Return(errors.New("set_network 2 psk \"short\" rejected by wpa_supplicant on wlan0"))
	s := newTestSwitcher(ctrl, nil)

	errs := s.SwitchAssociation(context.Background(), "wlan0", "Office", map[string]string{"psk": "short"})

	assert.Equal(t, []string{"set_network 2 psk \"short\" rejected by wpa_supplicant on wlan0"}, errs)
	ctrl.AssertNotCalled(t, "SetNetwork", "2", "ssid", "Office")
	ctrl.AssertNotCalled(t, "SelectNetwork", mock.Anything)
	ctrl.AssertNotCalled(t, "EnableNetwork", mock.Anything)
}

func TestSwitchTimeoutRestoresPrevious(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return(homeNetworks)
	ctrl.On("SetNetwork", "2", "ssid", "Office").Return(nil)
	ctrl.On("SelectNetwork", "2").Return(nil).Once()
	ctrl.On("Completed").Return(false)
	ctrl.On("SelectNetwork", "0").Return(nil).Once()
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	s := newTestSwitcher(ctrl, nil, WithMetrics(collector))

	start := time.Now()
	errs := s.SwitchAssociation(context.Background(), "wlan0", "Office", nil)

	assert.Equal(t, []string{"Failed to switch to Office"}, errs)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	ctrl.AssertExpectations(t)
	ctrl.AssertNotCalled(t, "DisableNetwork", mock.Anything)
	ctrl.AssertNotCalled(t, "EnableNetwork", mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SwitchAttempts.WithLabelValues("wlan0", metrics.SwitchTimeout)))
}

func TestSwitchTimeoutWithoutPreviousDisablesTarget(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return([]wpa_control.KnownNetwork{
		{ID: "0", SSID: "Home"},
		{ID: "1", SSID: "Cafe", Flags: "[DISABLED]"},
	})
	ctrl.On("AddNetwork").Return("2", nil)
	ctrl.On("SetNetwork", "2", "ssid", "Office").Return(nil)
	ctrl.On("SelectNetwork", "2").Return(nil)
	ctrl.On("Completed").Return(false)
	ctrl.On("DisableNetwork", "2").Return(nil).Once()
	ctrl.On("EnableNetwork", "0").Return(errors.New("FAIL")).Once()
	s := newTestSwitcher(ctrl, nil)

	errs := s.SwitchAssociation(context.Background(), "wlan0", "Office", nil)

	assert.Equal(t, []string{"Failed to switch to Office"}, errs)
	ctrl.AssertExpectations(t)
	ctrl.AssertNotCalled(t, "EnableNetwork", "1")
	ctrl.AssertNotCalled(t, "EnableNetwork", "2")
}

func TestSwitchIgnoresCancellation(t *testing.T) {
	ctrl := new(MockControl)
	ctrl.On("ListNetworks").Return(homeNetworks)
	ctrl.On("SetNetwork", "2", "ssid", "Office").Return(nil)
	ctrl.On("SelectNetwork", "2").Return(nil)
	ctrl.On("Completed").Return(true)
	ctrl.On("EnableNetwork", "0").Return(nil)
	s := newTestSwitcher(ctrl, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := s.SwitchAssociation(ctx, "wlan0", "Office", nil)

	assert.Empty(t, errs)
	ctrl.AssertExpectations(t)
}

// eventLog is shared by every recordingControl of a test.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// recordingControl logs when switches begin and end so overlap can be detected.
type recordingControl struct {
	iface string
	log   *eventLog
}

func (r *recordingControl) ListNetworks(ctx context.Context) []wpa_control.KnownNetwork {
	r.log.add(r.iface + " begin")
	time.Sleep(10 * time.Millisecond)
	return []wpa_control.KnownNetwork{{ID: "0", SSID: "Home"}}
}

func (r *recordingControl) AddNetwork(ctx context.Context) (string, error) { return "1", nil }

func (r *recordingControl) SetNetwork(ctx context.Context, id, key, value string) error { return nil }

func (r *recordingControl) SelectNetwork(ctx context.Context, id string) error { return nil }

func (r *recordingControl) EnableNetwork(ctx context.Context, id string) error {
	r.log.add(r.iface + " end")
	return nil
}

func (r *recordingControl) DisableNetwork(ctx context.Context, id string) error { return nil }

func (r *recordingControl) Completed(ctx context.Context) bool { return true }

func assertNoInterleaving(t *testing.T, events []string, switches int) {
	t.Helper()
	require.Len(t, events, 2*switches)
	for i := 0; i < len(events); i += 2 {
		iface, _, _ := strings.Cut(events[i], " ")
		assert.Equal(t, iface+" begin", events[i])
		assert.Equal(t, iface+" end", events[i+1], "switch on %s overlapped with another switch", iface)
	}
}

func TestConcurrentSwitchesDoNotOverlap(t *testing.T) {
	log := &eventLog{}
	s := newTestSwitcher(&recordingControl{iface: "wlan0", log: log}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Empty(t, s.SwitchAssociation(context.Background(), "wlan0", "Office", nil))
		}()
	}
	wg.Wait()

	assertNoInterleaving(t, log.snapshot(), 4)
}

func TestSwitchesOnDifferentInterfacesDoNotOverlap(t *testing.T) {
	interfaces := staticInterfaces{
		"wlan0": {Name: "wlan0", Type: interface_directory.TypeWAN, Enabled: true, WpaSupplicant: true},
		"wlan2": {Name: "wlan2", Type: interface_directory.TypeWAN, Enabled: true, WpaSupplicant: true},
	}
	log := &eventLog{}
	s := New(interfaces,
		func(iface string) AssociationControl {
			return &recordingControl{iface: iface, log: log}
		},
		WithPolling(5*time.Millisecond, 40*time.Millisecond),
	)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		iface := "wlan0"
		if i%2 == 1 {
			iface = "wlan2"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Empty(t, s.SwitchAssociation(context.Background(), iface, "Office", nil))
		}()
	}
	wg.Wait()

	events := log.snapshot()
	assertNoInterleaving(t, events, 6)
	assert.Contains(t, events, "wlan2 begin")
}
