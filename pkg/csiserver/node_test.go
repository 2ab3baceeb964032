package csiserver

import (
	"context"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeMounter struct {
	mountErr   error
	unmountErr error
	mounted    []string
	unmounted  []string
}

func (f *fakeMounter) Mount(ctx context.Context, volumeID, target string) error {
	if f.mountErr != nil {
		return f.mountErr
	}
	f.mounted = append(f.mounted, volumeID)
	return nil
}

func (f *fakeMounter) Unmount(ctx context.Context, volumeID, target string) error {
	if f.unmountErr != nil {
		return f.unmountErr
	}
	f.unmounted = append(f.unmounted, volumeID)
	return nil
}

func TestNodePublishVolumeRequiresVolumeID(t *testing.T) {
	s := NewNodeServer("node-1", &fakeMounter{})
	_, err := s.NodePublishVolume(context.Background(), &csi.NodePublishVolumeRequest{TargetPath: "/target"})
	st, ok := status.FromError(err)
	assert.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestNodePublishVolumeRequiresTargetPath(t *testing.T) {
	s := NewNodeServer("node-1", &fakeMounter{})
	_, err := s.NodePublishVolume(context.Background(), &csi.NodePublishVolumeRequest{VolumeId: "vol-A"})
	st, ok := status.FromError(err)
	assert.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestNodePublishVolumeDelegatesToMounter(t *testing.T) {
	mounter := &fakeMounter{}
	s := NewNodeServer("node-1", mounter)
	_, err := s.NodePublishVolume(context.Background(), &csi.NodePublishVolumeRequest{
		VolumeId:   "vol-A",
		TargetPath: "/target",
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"vol-A"}, mounter.mounted)
}

func TestNodePublishVolumeWrapsMounterError(t *testing.T) {
	mounter := &fakeMounter{mountErr: assert.AnError}
	s := NewNodeServer("node-1", mounter)
	_, err := s.NodePublishVolume(context.Background(), &csi.NodePublishVolumeRequest{
		VolumeId:   "vol-A",
		TargetPath: "/target",
	})
	st, ok := status.FromError(err)
	assert.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
}

func TestNodeUnpublishVolumeDelegatesToMounter(t *testing.T) {
	mounter := &fakeMounter{}
	s := NewNodeServer("node-1", mounter)
	_, err := s.NodeUnpublishVolume(context.Background(), &csi.NodeUnpublishVolumeRequest{
		VolumeId:   "vol-A",
		TargetPath: "/target",
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"vol-A"}, mounter.unmounted)
}

func TestNodeGetInfoReturnsConfiguredNodeID(t *testing.T) {
	s := NewNodeServer("node-7", &fakeMounter{})
	resp, err := s.NodeGetInfo(context.Background(), &csi.NodeGetInfoRequest{})
	assert.NoError(t, err)
	assert.Equal(t, "node-7", resp.GetNodeId())
}

func TestUnimplementedMethodsReturnUnimplemented(t *testing.T) {
	s := NewNodeServer("node-1", &fakeMounter{})
	_, err := s.NodeStageVolume(context.Background(), &csi.NodeStageVolumeRequest{})
	st, ok := status.FromError(err)
	assert.True(t, ok)
	assert.Equal(t, codes.Unimplemented, st.Code())
}
