// Package wireless_switcher defines interfaces for dependency injection.
package wireless_switcher

import (
	"context"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/interface_directory"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wpa_control"
)

// InterfaceResolver looks up interfaces of the active network document.
type InterfaceResolver interface {
	Interface(name string) *interface_directory.Interface
}

// AssociationControl is the control channel of one supplicant.
type AssociationControl interface {
	ListNetworks(ctx context.Context) []wpa_control.KnownNetwork
	AddNetwork(ctx context.Context) (string, error)
	SetNetwork(ctx context.Context, id, key, value string) error
	SelectNetwork(ctx context.Context, id string) error
	EnableNetwork(ctx context.Context, id string) error
	DisableNetwork(ctx context.Context, id string) error
	Completed(ctx context.Context) bool
}

// ControlFactory opens the control channel of an interface.
type ControlFactory func(iface string) AssociationControl

var _ AssociationControl = (*wpa_control.Control)(nil)
