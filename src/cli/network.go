package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/interface_directory"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wan_liveness"
	"github.com/sirupsen/logrus"
)

var phyInterfaceNames = interface_directory.PhyInterfaceNames

var wanAggregateCached = wan_liveness.AggregateOptions{}

// errorListResponse reports a non-empty list of problems.
func errorListResponse(errs []string) CLIResponse {
	return CLIResponse{
		Success:   false,
		Error:     strings.Join(errs, "; "),
		Data:      errs,
		Timestamp: time.Now(),
	}
}

// handleInterfacesCommand lists interfaces: phy, wan, lan or all (default)
func (s *CLIServer) handleInterfacesCommand(args []string) CLIResponse {
	kind := "all"
	if len(args) > 0 {
		kind = args[0]
	}

	if kind == "phy" {
		names, err := phyInterfaceNames()
		if err != nil {
			return errorResponse(fmt.Sprintf("Failed to list physical interfaces: %v", err))
		}
		return CLIResponse{
			Success:   true,
			Message:   fmt.Sprintf("%d physical interfaces", len(names)),
			Data:      names,
			Timestamp: time.Now(),
		}
	}

	if s.services.Directory == nil {
		return errorResponse("Interface directory not available")
	}
	var list []*interface_directory.Interface
	switch kind {
	case "all":
		list = s.services.Directory.Interfaces()
	case "wan":
		list = s.services.Directory.WANs()
	case "lan":
		list = s.services.Directory.LANs()
	default:
		return errorResponse(fmt.Sprintf("Unknown interface kind: %s (supported: phy, wan, lan, all)", kind))
	}

	return CLIResponse{
		Success:   true,
		Message:   fmt.Sprintf("%d %s interfaces", len(list), kind),
		Data:      list,
		Timestamp: time.Now(),
	}
}

// handleInterfaceCommand shows one interface
func (s *CLIServer) handleInterfaceCommand(args []string) CLIResponse {
	if len(args) == 0 {
		return errorResponse("Interface command requires an interface name")
	}
	if s.services.Directory == nil {
		return errorResponse("Interface directory not available")
	}
	iface := s.services.Directory.Interface(args[0])
	if iface == nil {
		return errorResponse(fmt.Sprintf("Interface %s is not found", args[0]))
	}
	return CLIResponse{
		Success:   true,
		Data:      iface,
		Timestamp: time.Now(),
	}
}

// handleWifiCommand processes WiFi commands. Flags of "switch" are passed to
// the supplicant as network parameters.
func (s *CLIServer) handleWifiCommand(ctx context.Context, args []string, flags map[string]string) CLIResponse {
	if len(args) == 0 {
		return errorResponse("WiFi command requires an action (switch)")
	}

	switch args[0] {
	case "switch":
		if len(args) < 3 {
			return errorResponse("Switch requires an interface and an SSID")
		}
		if s.services.Switcher == nil {
			return errorResponse("WiFi switcher not available")
		}
		iface, ssid := args[1], args[2]
		cliLogger.WithFields(logrus.Fields{
			"interface": iface,
			"ssid":      ssid,
		}).Info("Switching WiFi association")

		if errs := s.services.Switcher.SwitchAssociation(ctx, iface, ssid, flags); len(errs) > 0 {
			return errorListResponse(errs)
		}
		return CLIResponse{
			Success:   true,
			Message:   fmt.Sprintf("Switched %s to %s", iface, ssid),
			Timestamp: time.Now(),
		}
	default:
		return errorResponse(fmt.Sprintf("Unknown wifi action: %s (supported: switch)", args[0]))
	}
}

// handleConfigCommand processes network document commands
func (s *CLIServer) handleConfigCommand(ctx context.Context, args []string, flags map[string]string) CLIResponse {
	if len(args) == 0 {
		return errorResponse("Config command requires an action (show, validate, apply, save)")
	}
	if s.services.Config == nil {
		return errorResponse("Config manager not available")
	}

	action := args[0]
	if action == "show" {
		current := s.services.Config.CurrentConfig(ctx)
		if current == nil {
			return errorResponse("No network config available")
		}
		return CLIResponse{
			Success:   true,
			Data:      json.RawMessage(current),
			Timestamp: time.Now(),
		}
	}

	doc := []byte(flags["config"])
	switch action {
	case "validate":
		if errs := s.services.Config.Validate(doc); len(errs) > 0 {
			return errorListResponse(errs)
		}
		return CLIResponse{Success: true, Message: "Network config is valid", Timestamp: time.Now()}

	case "apply":
		dryRun := flags["dry_run"] == "true"
		if errs := s.services.Config.Validate(doc); len(errs) > 0 {
			return errorListResponse(errs)
		}
		if errs := s.services.Config.Apply(ctx, doc, dryRun); len(errs) > 0 {
			return errorListResponse(errs)
		}
		if dryRun {
			return CLIResponse{Success: true, Message: "Dry run succeeded", Timestamp: time.Now()}
		}
		if err := s.services.Config.Persist(ctx, doc); err != nil {
			return errorResponse(fmt.Sprintf("Network config applied but not saved: %v", err))
		}
		if s.services.Directory != nil {
			s.services.Directory.Reload(doc)
		}
		return CLIResponse{Success: true, Message: "Network config applied", Timestamp: time.Now()}

	case "save":
		if errs := s.services.Config.Validate(doc); len(errs) > 0 {
			return errorListResponse(errs)
		}
		if err := s.services.Config.Persist(ctx, doc); err != nil {
			return errorResponse(fmt.Sprintf("Failed to save network config: %v", err))
		}
		return CLIResponse{Success: true, Message: "Network config saved", Timestamp: time.Now()}

	default:
		return errorResponse(fmt.Sprintf("Unknown config action: %s (supported: show, validate, apply, save)", action))
	}
}

// handleWanCommand processes WAN liveness commands
func (s *CLIServer) handleWanCommand(ctx context.Context, args []string, flags map[string]string) CLIResponse {
	if len(args) == 0 {
		return errorResponse("WAN command requires an action (check, status, last)")
	}
	if s.services.Liveness == nil {
		return errorResponse("WAN liveness not available")
	}

	switch args[0] {
	case "check":
		if len(args) < 2 {
			return errorResponse("Check requires an interface name")
		}
		var opts wan_liveness.ProbeOptions
		if sites := flags["http_sites"]; sites != "" {
			for _, site := range strings.Split(sites, ",") {
				if site = strings.TrimSpace(site); site != "" {
					opts.HTTPSites = append(opts.HTTPSites, site)
				}
			}
		}
		if count := flags["probe_count"]; count != "" {
			n, err := strconv.Atoi(count)
			if err != nil || n < 1 {
				return errorResponse(fmt.Sprintf("Invalid probe_count: %s", count))
			}
			opts.ProbeCount = n
		}
		result, err := s.services.Liveness.Probe(ctx, args[1], opts)
		if err != nil {
			if errors.Is(err, wan_liveness.ErrInterfaceNotFound) || errors.Is(err, wan_liveness.ErrNotWAN) {
				return errorResponse(err.Error())
			}
			return errorResponse(fmt.Sprintf("Probe failed: %v", err))
		}
		return CLIResponse{Success: true, Data: result, Timestamp: time.Now()}

	case "status":
		opts := wan_liveness.AggregateOptions{Live: flags["live"] == "true"}
		overall, err := s.services.Liveness.Aggregate(ctx, opts)
		if err != nil {
			return errorResponse(fmt.Sprintf("Failed to aggregate WAN status: %v", err))
		}
		if overall == nil {
			return errorResponse("Routing information not available")
		}
		return CLIResponse{Success: true, Data: overall, Timestamp: time.Now()}

	case "last":
		return CLIResponse{Success: true, Data: s.services.Liveness.LastProbeTimes(), Timestamp: time.Now()}

	default:
		return errorResponse(fmt.Sprintf("Unknown wan action: %s (supported: check, status, last)", args[0]))
	}
}
