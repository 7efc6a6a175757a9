package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/cli"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/config_store"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/executor"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/interface_directory"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/metrics"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/network_config"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wan_liveness"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wireless_switcher"
	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/wpa_control"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var mainLogger = logrus.WithField("module", "main")

// daemon holds the wired components of the service.
type daemon struct {
	config    *config_manager.Config
	store     config_store.Store
	collector *metrics.Collector
	manager   *network_config.Manager
	directory *interface_directory.ConfigDirectory
	switcher  *wireless_switcher.Switcher
	liveness  *wan_liveness.Aggregator
}

// newDaemon opens the store and builds every component from cfg.
func newDaemon(ctx context.Context, cfg *config_manager.Config, reg prometheus.Registerer) (*daemon, error) {
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, err
	}

	store, err := config_store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	runner := executor.NewCommandRunner(cfg.Wpa.UseSudo)
	applier, err := network_config.NewCommandApplier(runner, cfg.SetupCommand)
	if err != nil {
		store.Close()
		return nil, err
	}

	manager := network_config.NewManager(store, applier,
		network_config.WithStoreKey(cfg.Store.Key),
		network_config.WithDefaultConfigPath(cfg.DefaultNetworkConfigPath),
		network_config.WithFlushDelay(time.Duration(cfg.Store.FlushDelay)),
		network_config.WithSyncRunner(runner),
		network_config.WithMetrics(collector),
	)

	directory := interface_directory.NewConfigDirectory(manager.CurrentConfig(ctx),
		interface_directory.WithHTTPTimeout(time.Duration(cfg.Liveness.HTTPTimeout)))

	switcher := wireless_switcher.New(directory,
		func(iface string) wireless_switcher.AssociationControl {
			return wpa_control.New(runner, cfg.Wpa.CLIPath, cfg.Wpa.RuntimeFolder, iface)
		},
		wireless_switcher.WithPolling(time.Duration(cfg.Wpa.PollInterval), time.Duration(cfg.Wpa.SwitchTimeout)),
		wireless_switcher.WithMetrics(collector),
	)

	liveness := wan_liveness.NewAggregator(directory, livenessPolicy(cfg.Liveness),
		wan_liveness.WithMetrics(collector))

	return &daemon{
		config:    cfg,
		store:     store,
		collector: collector,
		manager:   manager,
		directory: directory,
		switcher:  switcher,
		liveness:  liveness,
	}, nil
}

// livenessPolicy fills unset fields of lc from the default policy.
func livenessPolicy(lc config_manager.LivenessConfig) wan_liveness.Policy {
	policy := wan_liveness.DefaultPolicy()
	if len(lc.Resolvers) > 0 {
		policy.Resolvers = lc.Resolvers
	}
	if lc.MinSuccess > 0 {
		policy.MinSuccess = lc.MinSuccess
	}
	if lc.DNSTimeout > 0 {
		policy.DNSTimeout = time.Duration(lc.DNSTimeout)
	}
	if lc.ProbeHost != "" {
		policy.ProbeHost = lc.ProbeHost
	}
	if len(lc.HTTPSites) > 0 {
		policy.HTTPSites = lc.HTTPSites
	}
	return policy
}

func (d *daemon) services() cli.Services {
	return cli.Services{
		Directory: d.directory,
		Switcher:  d.switcher,
		Config:    d.manager,
		Liveness:  d.liveness,
	}
}

// serveMetrics exposes the collectors until the returned server is shut down.
func (d *daemon) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.collector.Handler())
	server := &http.Server{
		Addr:         d.config.MetricsListen,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("Metrics server failed")
		}
	}()
	mainLogger.WithField("listen", d.config.MetricsListen).Info("Metrics server started")
	return server
}

func main() {
	configPath := config_manager.ConfigFilePath()
	configManager, err := config_manager.NewConfigManager(configPath)
	if err != nil {
		logrus.WithError(err).WithField("path", configPath).Fatal("Failed to create config manager")
	}
	cfg := configManager.GetConfig()
	InitializeGlobalLogger(cfg.LogLevel)
	mainLogger.WithField("path", configPath).Info("Using config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		mainLogger.WithError(err).Fatal("Failed to start netconfig")
	}
	defer d.store.Close()

	mainLogger.WithFields(logrus.Fields{
		"interfaces": len(d.directory.Interfaces()),
		"wans":       len(d.directory.WANs()),
	}).Info("Network config loaded")

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		metricsServer = d.serveMetrics()
	}

	cliServer := cli.NewCLIServer(cfg.SocketPath, d.services())
	if err := cliServer.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Failed to start CLI server")
	}

	<-ctx.Done()
	mainLogger.Info("Shutting down netconfig")

	cliServer.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}
}
