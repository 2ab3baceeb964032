// Package config holds the plugin's runtime configuration and the
// resolution of that configuration from CLI flags and environment
// variables, separated out from cmd/baseoverlay-csi so it can be
// constructed directly in tests without going through cobra.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/baseoverlay-csi/pkg/log"
)

// Config is the fully resolved configuration for one running instance of
// the plugin.
type Config struct {
	// NodeID identifies this node in NodeGetInfo responses and in pod
	// scheduling for provisioned scratch pods.
	NodeID string

	// PluginName is returned from GetPluginInfo.
	PluginName string

	// Namespace is the Kubernetes namespace scratch pods are created in.
	Namespace string

	// PodID is this plugin's own pod's UID, read from the POD_ID
	// environment variable. It locates the bases-host emptyDir volume on
	// the node's filesystem.
	PodID string

	// BasesRoot is the host path to the bases-host emptyDir volume,
	// derived from PodsRoot and PodID at startup.
	BasesRoot string

	// PodsRoot is the kubelet pod directory root, normally
	// /var/lib/kubelet/pods.
	PodsRoot string

	// MaxBaseAge is the maximum age a base may have before it is
	// considered expired.
	MaxBaseAge time.Duration

	// ScratchSizeLimit is the size limit applied to each provisioned
	// scratch pod's emptyDir volume, in Kubernetes quantity form (e.g.
	// "10Gi").
	ScratchSizeLimit string

	// Endpoint is the CSI Unix domain socket address, accepted in either
	// unix:///path or bare /path form.
	Endpoint string

	// MetricsAddr is the bind address for the /metrics and /healthz HTTP
	// server.
	MetricsAddr string

	// KubeconfigPath, if non-empty, overrides in-cluster config
	// resolution. Used for local testing outside a cluster.
	KubeconfigPath string

	LogLevel  log.Level
	LogJSON   bool
	Version   string
	Commit    string
	BuildTime string
}

// SocketPath strips a unix:// scheme prefix from Endpoint, returning the
// bare filesystem path to bind.
func (c Config) SocketPath() (string, error) {
	if c.Endpoint == "" {
		return "", fmt.Errorf("endpoint must not be empty")
	}
	if strings.HasPrefix(c.Endpoint, "unix://") {
		return strings.TrimPrefix(c.Endpoint, "unix://"), nil
	}
	if strings.Contains(c.Endpoint, "://") {
		return "", fmt.Errorf("unsupported endpoint scheme: %s", c.Endpoint)
	}
	return c.Endpoint, nil
}

// Validate checks that required fields were supplied and derives BasesRoot
// from PodsRoot and PodID. It is the single point where a missing
// environment dependency becomes a fatal startup error, matching the
// teacher's pattern of validating configuration before any subsystem
// starts.
func (c *Config) Validate() error {
	if c.PodID == "" {
		c.PodID = os.Getenv("POD_ID")
	}
	if c.PodID == "" {
		return fmt.Errorf("POD_ID environment variable must be set")
	}
	if c.NodeID == "" {
		return fmt.Errorf("node ID must be set")
	}
	if c.PodsRoot == "" {
		c.PodsRoot = "/var/lib/kubelet/pods"
	}
	if c.MaxBaseAge <= 0 {
		return fmt.Errorf("max base age must be positive")
	}
	if c.ScratchSizeLimit == "" {
		c.ScratchSizeLimit = "10Gi"
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must be set")
	}
	if c.PluginName == "" {
		c.PluginName = "baseoverlay.csi.cuemby.com"
	}

	c.BasesRoot = fmt.Sprintf("%s/%s/volumes/kubernetes.io~empty-dir/bases", c.PodsRoot, c.PodID)
	return nil
}
