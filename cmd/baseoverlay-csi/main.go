package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/baseoverlay-csi/pkg/basestore"
	"github.com/cuemby/baseoverlay-csi/pkg/clock"
	"github.com/cuemby/baseoverlay-csi/pkg/config"
	"github.com/cuemby/baseoverlay-csi/pkg/csiserver"
	"github.com/cuemby/baseoverlay-csi/pkg/healthz"
	"github.com/cuemby/baseoverlay-csi/pkg/lifecycle"
	"github.com/cuemby/baseoverlay-csi/pkg/log"
	"github.com/cuemby/baseoverlay-csi/pkg/metrics"
	"github.com/cuemby/baseoverlay-csi/pkg/mountutil"
	"github.com/cuemby/baseoverlay-csi/pkg/provisioner"
	"github.com/cuemby/baseoverlay-csi/pkg/registry"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:     "baseoverlay-csi",
	Short:   "CSI node plugin for rotated-base overlay volumes",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"baseoverlay-csi version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.NodeID, "node-id", "", "Node ID reported to NodeGetInfo (required)")
	flags.StringVar(&cfg.Namespace, "namespace", "default", "Namespace for scratch pods")
	flags.StringVar(&cfg.PodsRoot, "pods-root", "/var/lib/kubelet/pods", "Kubelet pod directory root")
	flags.DurationVar(&cfg.MaxBaseAge, "max-base-age", time.Hour, "Maximum age a base may have before it expires")
	flags.StringVar(&cfg.ScratchSizeLimit, "scratch-size-limit", "10Gi", "Size limit for each scratch pod's emptyDir volume")
	flags.StringVar(&cfg.Endpoint, "endpoint", "unix:///csi/csi.sock", "CSI endpoint")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", ":9808", "Bind address for /metrics and /healthz")
	flags.StringVar(&cfg.KubeconfigPath, "kubeconfig", "", "Path to a kubeconfig file, for running outside a cluster")
	flags.StringVar(&cfg.PluginName, "plugin-name", "baseoverlay.csi.cuemby.com", "Plugin name reported to GetPluginInfo")

	logLevel := flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	logJSON := flags.Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(func() {
		cfg.LogLevel = log.Level(*logLevel)
		cfg.LogJSON = *logJSON
		log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	})
}

func run(cmd *cobra.Command, args []string) error {
	cfg.Version = Version
	cfg.Commit = Commit
	cfg.BuildTime = BuildTime

	if err := cfg.Validate(); err != nil {
		log.Fatal(fmt.Sprintf("invalid configuration: %v", err))
	}

	socketPath, err := cfg.SocketPath()
	if err != nil {
		log.Fatal(fmt.Sprintf("invalid endpoint: %v", err))
	}

	kubeClient, err := buildKubeClient(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("failed to build Kubernetes client: %w", err)
	}

	if err := os.MkdirAll(cfg.BasesRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create bases root %s: %w", cfg.BasesRoot, err)
	}

	store := basestore.New(cfg.BasesRoot, cfg.MaxBaseAge, clock.Real())
	reg := registry.New()
	prov := provisioner.New(kubeClient, cfg.Namespace, cfg.NodeID, cfg.ScratchSizeLimit, cfg.PodsRoot)
	coordinator := lifecycle.New(store, reg, mountEngine{}, prov, clock.Real())

	reaper := lifecycle.NewReaper(coordinator)
	reaper.Start()
	defer reaper.Stop()

	collector := metrics.NewCollector(coordinator)
	collector.Start()
	defer collector.Stop()

	healthServer := healthz.NewServer(Version)
	go func() {
		if err := healthServer.Start(cfg.MetricsAddr); err != nil {
			log.Logger.Error().Err(err).Msg("health server exited")
		}
	}()

	identity := csiserver.NewIdentityServer(cfg.PluginName, Version)
	node := csiserver.NewNodeServer(cfg.NodeID, coordinator)
	server := csiserver.NewServer(identity, node)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(socketPath); err != nil {
			errCh <- fmt.Errorf("CSI server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	server.Stop()
	return nil
}

// mountEngine adapts the package-level mountutil functions to the
// lifecycle.MountEngine interface.
type mountEngine struct{}

func (mountEngine) Overlay(ctx context.Context, id, lowerDir, upperDir, workDir, target string) error {
	return mountutil.Overlay(ctx, id, lowerDir, upperDir, workDir, target)
}

func (mountEngine) Bind(ctx context.Context, source, target string) error {
	return mountutil.Bind(ctx, source, target)
}

func (mountEngine) Unmount(ctx context.Context, target string) error {
	return mountutil.Unmount(ctx, target)
}

func buildKubeClient(kubeconfigPath string) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error

	if kubeconfigPath != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Kubernetes client config: %w", err)
	}

	return kubernetes.NewForConfig(restConfig)
}
