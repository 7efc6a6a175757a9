// Package wpa_control drives a wpa_supplicant instance through wpa_cli.
package wpa_control

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/executor"
	"github.com/sirupsen/logrus"
)

// DefaultCLIPath is used when no wpa_cli path is configured.
const DefaultCLIPath = "wpa_cli"

// Control issues control-channel commands for a single interface.
type Control struct {
	runner    executor.Runner
	cliPath   string
	socketDir string
	iface     string
}

// New creates a Control for iface whose control socket lives under
// <runtimeFolder>/wpa_supplicant/<iface>.
func New(runner executor.Runner, cliPath, runtimeFolder, iface string) *Control {
	if cliPath == "" {
		cliPath = DefaultCLIPath
	}
	return &Control{
		runner:    runner,
		cliPath:   cliPath,
		socketDir: filepath.Join(runtimeFolder, "wpa_supplicant", iface),
		iface:     iface,
	}
}

func (c *Control) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-p", c.socketDir, "-i", c.iface}, args...)
	out, err := c.runner.Run(ctx, c.cliPath, full...)
	if err != nil {
		return out, err
	}
	// wpa_cli exits 0 when the supplicant rejects a command
	if strings.TrimSpace(out) == "FAIL" {
		return out, fmt.Errorf("%s rejected by wpa_supplicant on %s", strings.Join(args, " "), c.iface)
	}
	return out, nil
}

// ListNetworks returns the configured networks. A failing command yields an
// empty list.
func (c *Control) ListNetworks(ctx context.Context) []KnownNetwork {
	out, err := c.run(ctx, "list_networks")
	if err != nil {
		logger.WithFields(logrus.Fields{
			"interface": c.iface,
			"error":     err,
		}).Error("Failed to list networks")
		return []KnownNetwork{}
	}
	return parseNetworkList(out)
}

func parseNetworkList(out string) []KnownNetwork {
	networks := []KnownNetwork{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "Selected interface") || strings.HasPrefix(line, "network id") {
			continue
		}
		fields := strings.SplitN(line, "\t", 4)
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		n := KnownNetwork{ID: fields[0]}
		if len(fields) > 1 {
			n.SSID = fields[1]
		}
		if len(fields) > 2 {
			n.BSSID = fields[2]
		}
		if len(fields) > 3 {
			n.Flags = fields[3]
		}
		networks = append(networks, n)
	}
	return networks
}

// AddNetwork creates an empty network entry and returns its id.
func (c *Control) AddNetwork(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "add_network")
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	id := strings.TrimSpace(lines[len(lines)-1])
	if _, err := strconv.Atoi(id); err != nil {
		return "", fmt.Errorf("unexpected add_network output %q", strings.TrimSpace(out))
	}
	return id, nil
}

// SetNetwork sets one parameter of network id.
func (c *Control) SetNetwork(ctx context.Context, id, key, value string) error {
	_, err := c.run(ctx, "set_network", id, key, EscapeValue(key, value))
	return err
}

// SelectNetwork selects id and disables every other network.
func (c *Control) SelectNetwork(ctx context.Context, id string) error {
	_, err := c.run(ctx, "select_network", id)
	return err
}

// EnableNetwork allows id to be picked by auto-selection again.
func (c *Control) EnableNetwork(ctx context.Context, id string) error {
	_, err := c.run(ctx, "enable_network", id)
	return err
}

// DisableNetwork excludes id from auto-selection.
func (c *Control) DisableNetwork(ctx context.Context, id string) error {
	_, err := c.run(ctx, "disable_network", id)
	return err
}

// State returns the wpa_state field of the status output.
func (c *Control) State(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "status")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "wpa_state=") {
			return strings.TrimSpace(strings.TrimPrefix(line, "wpa_state=")), nil
		}
	}
	return "", nil
}

// Completed reports whether association has completed. Failures read as false.
func (c *Control) Completed(ctx context.Context) bool {
	state, err := c.State(ctx)
	if err != nil {
		logger.WithError(err).WithField("interface", c.iface).Debug("Could not read wpa_state")
		return false
	}
	return state == "COMPLETED"
}
