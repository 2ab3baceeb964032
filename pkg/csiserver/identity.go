package csiserver

import (
	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// IdentityServer implements the CSI Identity service. It carries no state
// beyond the plugin's name and version, both fixed at startup.
type IdentityServer struct {
	csi.UnimplementedIdentityServer

	name    string
	version string
}

// NewIdentityServer returns an IdentityServer advertising name and version.
func NewIdentityServer(name, version string) *IdentityServer {
	return &IdentityServer{name: name, version: version}
}

// GetPluginInfo returns the plugin's name and vendor version.
func (s *IdentityServer) GetPluginInfo(ctx context.Context, req *csi.GetPluginInfoRequest) (*csi.GetPluginInfoResponse, error) {
	return &csi.GetPluginInfoResponse{
		Name:          s.name,
		VendorVersion: s.version,
	}, nil
}

// GetPluginCapabilities reports no capabilities: there is no
// ControllerService, no online volume expansion, and ephemeral inline
// volume support is declared to Kubernetes via CSIDriver.spec.volumeLifecycleModes,
// not through this RPC.
func (s *IdentityServer) GetPluginCapabilities(ctx context.Context, req *csi.GetPluginCapabilitiesRequest) (*csi.GetPluginCapabilitiesResponse, error) {
	return &csi.GetPluginCapabilitiesResponse{}, nil
}

// Probe always reports ready: the plugin has no external dependency that
// it checks proactively beyond what NodePublishVolume itself will surface.
func (s *IdentityServer) Probe(ctx context.Context, req *csi.ProbeRequest) (*csi.ProbeResponse, error) {
	return &csi.ProbeResponse{Ready: wrapperspb.Bool(true)}, nil
}
