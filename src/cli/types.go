package cli

import (
	"context"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/interface_directory"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wan_liveness"
)

// CLIMessage represents communication between CLI client and service
type CLIMessage struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Flags     map[string]string `json:"flags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CLIResponse represents a response from the service
type CLIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ServiceStatus represents basic service status
type ServiceStatus struct {
	Running    bool   `json:"running"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Interfaces int    `json:"interfaces"`
	WANs       int    `json:"wans"`
	Connected  *bool  `json:"connected,omitempty"`
}

// NetworkDirectory is the interface index the CLI reads and refreshes.
type NetworkDirectory interface {
	interface_directory.Directory
	Interfaces() []*interface_directory.Interface
	WANs() []*interface_directory.Interface
	LANs() []*interface_directory.Interface
	Reload(doc []byte)
}

// AssociationSwitcher moves a WiFi WAN to another network.
type AssociationSwitcher interface {
	SwitchAssociation(ctx context.Context, interfaceID, ssid string, params map[string]string) []string
}

// ConfigTransactions validates, applies and persists network documents.
type ConfigTransactions interface {
	Validate(doc []byte) []string
	Apply(ctx context.Context, doc []byte, dryRun bool) []string
	Persist(ctx context.Context, doc []byte) error
	CurrentConfig(ctx context.Context) []byte
}

// LivenessAggregator probes WANs.
type LivenessAggregator interface {
	Probe(ctx context.Context, iface string, opts wan_liveness.ProbeOptions) (*wan_liveness.ProbeResult, error)
	Aggregate(ctx context.Context, opts wan_liveness.AggregateOptions) (*wan_liveness.OverallStatus, error)
	LastProbeTimes() map[string]int64
}

// Services are the daemon components reachable from the CLI.
type Services struct {
	Directory NetworkDirectory
	Switcher  AssociationSwitcher
	Config    ConfigTransactions
	Liveness  LivenessAggregator
}
