package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/cli"
	"github.com/spf13/cobra"
)

var socketPath = cli.DefaultSocketPath

var rootCmd = &cobra.Command{
	Use:   "netconfig",
	Short: "netconfig CLI - Control the router network daemon",
	Long: `netconfig CLI provides command-line access to the running netconfig service.
Use it to switch WiFi uplinks and to apply network configs.`,
}

var interfacesCmd = &cobra.Command{
	Use:       "interfaces [phy|wan|lan|all]",
	Short:     "List interfaces",
	Long:      "List interfaces of the active network config, or the physical links of the router",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"phy", "wan", "lan", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("interfaces", args, nil)
	},
}

var interfaceCmd = &cobra.Command{
	Use:   "interface [name]",
	Short: "Show one interface",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("interface", args, nil)
	},
}

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "WiFi operations",
	Long:  "Manage wpa_supplicant associations of WiFi WAN interfaces",
}

var wifiSwitchCmd = &cobra.Command{
	Use:   "switch [interface] [ssid]",
	Short: "Switch a WiFi WAN to another network",
	Long: `Associate the interface with the network named ssid. Extra network
parameters are given as --param key=value, for example --param psk=secret.
If the association does not complete the previous network is restored.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, _ := cmd.Flags().GetStringToString("param")
		return sendCommandAndDisplay("wifi", []string{"switch", args[0], args[1]}, params)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Network config operations",
	Long:  "Show, validate, apply and save the network config document",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current network config",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("config", []string{"show"}, nil)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a network config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendDocument("validate", args[0], nil)
	},
}

var configApplyCmd = &cobra.Command{
	Use:   "apply [file]",
	Short: "Apply a network config file",
	Long: `Validate the file, apply it and save it as the active config.
When the setup fails the previous config is applied again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := map[string]string{}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			flags["dry_run"] = "true"
		}
		return sendDocument("apply", args[0], flags)
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save [file]",
	Short: "Save a network config file without applying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendDocument("save", args[0], nil)
	},
}

var wanCmd = &cobra.Command{
	Use:   "wan",
	Short: "WAN liveness operations",
}

var wanCheckCmd = &cobra.Command{
	Use:   "check [interface]",
	Short: "Probe one WAN interface",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sites, _ := cmd.Flags().GetStringSlice("http-site")
		count, _ := cmd.Flags().GetInt("probe-count")
		flags := map[string]string{}
		if len(sites) > 0 {
			flags["http_sites"] = strings.Join(sites, ",")
		}
		if count > 0 {
			flags["probe_count"] = strconv.Itoa(count)
		}
		return sendCommandAndDisplay("wan", []string{"check", args[0]}, flags)
	},
}

var wanStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show overall WAN connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		var flags map[string]string
		if live, _ := cmd.Flags().GetBool("live"); live {
			flags = map[string]string{"live": "true"}
		}
		return sendCommandAndDisplay("wan", []string{"status"}, flags)
	},
}

var wanLastCmd = &cobra.Command{
	Use:   "last",
	Short: "Show when each WAN was last probed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("wan", []string{"last"}, nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("status", []string{}, nil)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("version", []string{}, nil)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show netconfig logs",
	Long:  "Display netconfig service logs from logread",
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		return executeLogsCommand(tail, follow)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", cli.DefaultSocketPath, "Path of the netconfig control socket")

	wifiSwitchCmd.Flags().StringToString("param", nil, "Network parameter passed to wpa_supplicant (key=value)")
	configApplyCmd.Flags().Bool("dry-run", false, "Only check that the config can be applied")
	wanCheckCmd.Flags().StringSlice("http-site", nil, "Site probed over HTTP (repeatable)")
	wanCheckCmd.Flags().Int("probe-count", 1, "DNS queries sent to each resolver")
	wanStatusCmd.Flags().Bool("live", false, "Probe every WAN instead of using cached results")
	logsCmd.Flags().IntP("tail", "n", 0, "Number of lines to show from the end (0 = all)")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output (like tail -f)")

	wifiCmd.AddCommand(wifiSwitchCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd, configApplyCmd, configSaveCmd)
	wanCmd.AddCommand(wanCheckCmd, wanStatusCmd, wanLastCmd)
	rootCmd.AddCommand(interfacesCmd, interfaceCmd, wifiCmd, configCmd, wanCmd, statusCmd, versionCmd, logsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// sendDocument reads a network config file and sends it with a config action.
func sendDocument(action, path string, flags map[string]string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", path, err)
	}
	if flags == nil {
		flags = map[string]string{}
	}
	flags["config"] = string(doc)
	return sendCommandAndDisplay("config", []string{action}, flags)
}

func sendCommandAndDisplay(command string, args []string, flags map[string]string) error {
	msg := cli.CLIMessage{
		Command:   command,
		Args:      args,
		Flags:     flags,
		Timestamp: time.Now(),
	}

	response, err := sendCommand(msg)
	if err != nil {
		return fmt.Errorf("failed to communicate with netconfig service: %v\nMake sure the netconfig service is running", err)
	}

	displayResponse(response)

	if !response.Success {
		return fmt.Errorf("command failed")
	}

	return nil
}

func sendCommand(msg cli.CLIMessage) (*cli.CLIResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to netconfig service: %v", err)
	}
	defer conn.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %v", err)
	}

	if _, err = conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send message: %v", err)
	}

	// Config documents can exceed the default token size
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return nil, fmt.Errorf("no response from service")
	}

	var response cli.CLIResponse
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}

	return &response, nil
}

// executeLogsCommand executes logread directly to show netconfig logs
func executeLogsCommand(tail int, follow bool) error {
	args := []string{"-e", "netconfig"}
	if follow {
		args = append(args, "-f")
	}
	if tail > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", tail))
	}

	cmd := exec.Command("logread", args...)

	if follow {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to read logs: %v", err)
	}

	fmt.Print(string(output))
	return nil
}

func displayResponse(response *cli.CLIResponse) {
	if response.Success {
		if response.Message != "" {
			fmt.Println(response.Message)
		}
		if response.Data != nil {
			displayData(response.Data)
		}
		return
	}

	// Problem lists are printed one per line
	if problems, ok := response.Data.([]interface{}); ok && len(problems) > 1 {
		fmt.Fprintln(os.Stderr, "Error:")
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "  - %v\n", p)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", response.Error)
}

func displayData(data interface{}) {
	switch v := data.(type) {
	case map[string]interface{}:
		if wans, ok := v["wans"].(map[string]interface{}); ok {
			displayWanStatus(v, wans)
		} else {
			displayMap(v, "")
		}
	default:
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err == nil {
			fmt.Println(string(jsonData))
		}
	}
}

func displayWanStatus(data map[string]interface{}, wans map[string]interface{}) {
	connected, _ := data["connected"].(bool)
	fmt.Printf("Connected: %v\n", connected)

	names := make([]string, 0, len(wans))
	for name := range wans {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("%s:\n", name)
		if status, ok := wans[name].(map[string]interface{}); ok {
			displayMap(status, "  ")
		}
	}
}

func displayMap(m map[string]interface{}, prefix string) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch v := m[key].(type) {
		case map[string]interface{}:
			fmt.Printf("%s%s:\n", prefix, key)
			displayMap(v, prefix+"  ")
		default:
			fmt.Printf("%s%s: %v\n", prefix, key, v)
		}
	}
}
