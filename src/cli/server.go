package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultSocketPath = "/var/run/netconfig.sock"
	SocketPermissions = 0666
)

var cliLogger = logrus.WithField("module", "cli")

// CLIServer handles Unix socket communication for CLI commands
type CLIServer struct {
	socketPath string
	services   Services
	startTime  time.Time
	listener   net.Listener
	running    atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCLIServer creates a new CLI server instance
func NewCLIServer(socketPath string, services Services) *CLIServer {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CLIServer{
		socketPath: socketPath,
		services:   services,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening on the Unix socket
func (s *CLIServer) Start() error {
	// Remove existing socket file if it exists
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	// Set socket permissions so CLI can access it
	if err := os.Chmod(s.socketPath, SocketPermissions); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	cliLogger.WithField("socket_path", s.socketPath).Info("CLI server started")

	go s.acceptConnections()

	return nil
}

// Stop shuts down the CLI server
func (s *CLIServer) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)

	cliLogger.Info("CLI server stopped")
	return nil
}

func (s *CLIServer) acceptConnections() {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				cliLogger.WithError(err).Error("Failed to accept connection")
			}
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection processes a single CLI connection
func (s *CLIServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Network documents can be large
	reader := bufio.NewReaderSize(conn, 64*1024)

	data, err := reader.ReadBytes('\n')
	if err != nil {
		cliLogger.WithError(err).Error("Failed to read from connection")
		return
	}
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	cliLogger.WithField("data_length", len(data)).Debug("Received CLI message")

	var msg CLIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cliLogger.WithError(err).Error("Failed to unmarshal CLI message")
		s.sendError(conn, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	response := s.processCommand(s.ctx, msg)
	s.sendResponse(conn, response)
}

// processCommand executes the CLI command and returns a response
func (s *CLIServer) processCommand(ctx context.Context, msg CLIMessage) CLIResponse {
	cliLogger.WithFields(logrus.Fields{
		"command": msg.Command,
		"args":    msg.Args,
	}).Debug("Processing CLI command")

	switch msg.Command {
	case "interfaces":
		return s.handleInterfacesCommand(msg.Args)
	case "interface":
		return s.handleInterfaceCommand(msg.Args)
	case "wifi":
		return s.handleWifiCommand(ctx, msg.Args, msg.Flags)
	case "config":
		return s.handleConfigCommand(ctx, msg.Args, msg.Flags)
	case "wan":
		return s.handleWanCommand(ctx, msg.Args, msg.Flags)
	case "status":
		return s.handleStatusCommand(ctx)
	case "version":
		return s.handleVersionCommand()
	default:
		return errorResponse(fmt.Sprintf("Unknown command: %s", msg.Command))
	}
}

// handleStatusCommand returns service status
func (s *CLIServer) handleStatusCommand(ctx context.Context) CLIResponse {
	status := ServiceStatus{
		Running: true,
		Version: GetVersionInfo(),
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.services.Directory != nil {
		status.Interfaces = len(s.services.Directory.Interfaces())
		status.WANs = len(s.services.Directory.WANs())
	}
	if s.services.Liveness != nil {
		overall, err := s.services.Liveness.Aggregate(ctx, wanAggregateCached)
		if err != nil {
			cliLogger.WithError(err).Warn("Failed to aggregate WAN status")
		} else if overall != nil {
			connected := overall.Connected
			status.Connected = &connected
		}
	}

	return CLIResponse{
		Success:   true,
		Message:   "Service status retrieved",
		Data:      status,
		Timestamp: time.Now(),
	}
}

// handleVersionCommand returns version information
func (s *CLIServer) handleVersionCommand() CLIResponse {
	return CLIResponse{
		Success:   true,
		Message:   GetFormattedVersionInfo(),
		Data:      GetFullVersionInfo(),
		Timestamp: time.Now(),
	}
}

func errorResponse(msg string) CLIResponse {
	return CLIResponse{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now(),
	}
}

// sendResponse sends a CLIResponse back to the client
func (s *CLIServer) sendResponse(conn net.Conn, response CLIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		cliLogger.WithError(err).Error("Failed to marshal response")
		return
	}

	conn.Write(data)
	conn.Write([]byte("\n"))
}

// sendError sends an error response to the client
func (s *CLIServer) sendError(conn net.Conn, errorMsg string) {
	s.sendResponse(conn, errorResponse(errorMsg))
}
