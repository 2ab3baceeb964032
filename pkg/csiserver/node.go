package csiserver

import (
	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Mounter is the subset of lifecycle.Coordinator the node server depends
// on, narrowed so this package does not import lifecycle directly.
type Mounter interface {
	Mount(ctx context.Context, volumeID, target string) error
	Unmount(ctx context.Context, volumeID, target string) error
}

// NodeServer implements the CSI Node service for ephemeral inline volumes.
// Every method besides NodePublishVolume, NodeUnpublishVolume,
// NodeGetCapabilities, and NodeGetInfo falls through to
// UnimplementedNodeServer's embedded codes.Unimplemented response: this
// plugin never stages a volume separately from publishing it, and exposes
// no volume stats or expansion.
type NodeServer struct {
	csi.UnimplementedNodeServer

	nodeID  string
	mounter Mounter
}

// NewNodeServer returns a NodeServer that delegates publish/unpublish to
// mounter.
func NewNodeServer(nodeID string, mounter Mounter) *NodeServer {
	return &NodeServer{nodeID: nodeID, mounter: mounter}
}

// NodePublishVolume mounts volumeID at TargetPath, either as an overlay
// against the current valid base or as a bare bind mount when no base is
// valid yet.
func (s *NodeServer) NodePublishVolume(ctx context.Context, req *csi.NodePublishVolumeRequest) (*csi.NodePublishVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume_id must be set")
	}
	if req.GetTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "target_path must be set")
	}

	if err := s.mounter.Mount(ctx, req.GetVolumeId(), req.GetTargetPath()); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &csi.NodePublishVolumeResponse{}, nil
}

// NodeUnpublishVolume unmounts a previously published volume and releases
// its scratch pod.
func (s *NodeServer) NodeUnpublishVolume(ctx context.Context, req *csi.NodeUnpublishVolumeRequest) (*csi.NodeUnpublishVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume_id must be set")
	}
	if req.GetTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "target_path must be set")
	}

	if err := s.mounter.Unmount(ctx, req.GetVolumeId(), req.GetTargetPath()); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &csi.NodeUnpublishVolumeResponse{}, nil
}

// NodeGetCapabilities reports no capabilities: publish/unpublish is the
// entire node lifecycle this plugin supports.
func (s *NodeServer) NodeGetCapabilities(ctx context.Context, req *csi.NodeGetCapabilitiesRequest) (*csi.NodeGetCapabilitiesResponse, error) {
	return &csi.NodeGetCapabilitiesResponse{}, nil
}

// NodeGetInfo identifies this node to the CSI sidecar by the configured
// node ID.
func (s *NodeServer) NodeGetInfo(ctx context.Context, req *csi.NodeGetInfoRequest) (*csi.NodeGetInfoResponse, error) {
	return &csi.NodeGetInfoResponse{NodeId: s.nodeID}, nil
}
