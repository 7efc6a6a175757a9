//go:build linux
// +build linux

package interface_directory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const sysClassNet = "/sys/class/net"

// HasDefaultRoute reports whether the kernel has a default route through iface.
func HasDefaultRoute(iface string) bool {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		logger.WithError(err).WithField("interface", iface).Debug("Link not found")
		return false
	}

	routes, err := netlink.RouteList(nil, netlink.FAMILY_ALL)
	if err != nil {
		logger.WithError(err).Warn("Failed to list routes")
		return false
	}
	for _, route := range routes {
		if route.LinkIndex == link.Attrs().Index && isDefaultRoute(route) {
			return true
		}
	}
	return false
}

// Older kernels and netlink versions report the default route with a nil Dst.
func isDefaultRoute(route netlink.Route) bool {
	if route.Dst == nil {
		return true
	}
	ones, _ := route.Dst.Mask.Size()
	return ones == 0
}

// PhyInterfaceNames lists the kernel links that are backed by hardware.
func PhyInterfaceNames() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	var names []string
	for _, link := range links {
		name := link.Attrs().Name
		target, err := os.Readlink(filepath.Join(sysClassNet, name))
		if err != nil {
			continue
		}
		if strings.Contains(target, "/virtual/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func bindToDevice(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var bindErr error
		if err := c.Control(func(fd uintptr) {
			bindErr = unix.BindToDevice(int(fd), iface)
		}); err != nil {
			return err
		}
		if bindErr != nil {
			return fmt.Errorf("failed to bind to %s: %w", iface, bindErr)
		}
		return nil
	}
}
