//go:build !linux
// +build !linux

package interface_directory

import (
	"errors"
	"syscall"
)

// HasDefaultRoute always reports false on systems without netlink.
func HasDefaultRoute(iface string) bool {
	return false
}

// PhyInterfaceNames is only available on Linux.
func PhyInterfaceNames() ([]string, error) {
	return nil, errors.New("physical interface enumeration requires linux")
}

func bindToDevice(iface string) func(network, address string, c syscall.RawConn) error {
	return nil
}
