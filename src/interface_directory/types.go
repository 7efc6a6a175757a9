package interface_directory

import (
	"context"
	"encoding/json"
	"time"
)

// Interface roles found under meta.type in the network document.
const (
	TypeWAN = "wan"
	TypeLAN = "lan"
)

// Interface is a logical network interface described by the active network
// document. It is read-only to the rest of the daemon.
type Interface struct {
	Name          string          `json:"name"`
	Section       string          `json:"section"`
	Type          string          `json:"type"`
	Enabled       bool            `json:"enabled"`
	WpaSupplicant bool            `json:"wpaSupplicant"`
	Config        json.RawMessage `json:"config,omitempty"`
}

// IsWAN reports whether the interface is an uplink.
func (i *Interface) IsWAN() bool {
	return i.Type == TypeWAN
}

// WanStatus is the last connectivity state observed on a WAN.
type WanStatus struct {
	Ready bool   `json:"ready"`
	DNS   bool   `json:"dns"`
	HTTP  string `json:"http,omitempty"`
	TS    int64  `json:"ts"`
}

// WanView is the routing layer's view of WAN liveness.
type WanView struct {
	Connected bool           `json:"connected"`
	WANs      map[string]any `json:"wans"`
}

// CheckOptions tunes a single connectivity check.
type CheckOptions struct {
	// ProbeCount is the number of queries sent to each resolver before it is
	// counted as failed.
	ProbeCount int
}

// InterfacePlugin performs connectivity checks through one interface.
type InterfacePlugin interface {
	IsWAN() bool
	// CheckWanConnectivity returns nil when the check was indeterminate.
	CheckWanConnectivity(ctx context.Context, resolvers []string, minSuccess int, timeout time.Duration, probeHost string, opts CheckOptions) (*bool, error)
	// CheckHttpStatus returns the HTTP status code of url, or "" on failure.
	CheckHttpStatus(ctx context.Context, url string) string
	GetWanStatus() *WanStatus
}

// RoutingPlugin exposes the routing layer's liveness view.
type RoutingPlugin interface {
	CurrentWanLivenessView() *WanView
}

// Directory resolves interface names to their configuration and plugins.
type Directory interface {
	Interface(name string) *Interface
	Plugin(name string) InterfacePlugin
	Routing() RoutingPlugin
}
