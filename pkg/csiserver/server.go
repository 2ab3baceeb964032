package csiserver

import (
	"fmt"
	"net"
	"os"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/cuemby/baseoverlay-csi/pkg/log"
	"google.golang.org/grpc"
)

// Server hosts the CSI Identity and Node gRPC services over a Unix domain
// socket. A CSI node plugin's socket is bind-mounted into the kubelet and
// any CSI sidecar containers on the same host, so the socket file's
// permissions are the only access control that applies; there is no TLS
// handshake to perform because there is no network peer to authenticate.
type Server struct {
	identity *IdentityServer
	node     *NodeServer
	grpc     *grpc.Server
}

// NewServer builds a Server that will register identity and node on a
// fresh grpc.Server when Start is called.
func NewServer(identity *IdentityServer, node *NodeServer) *Server {
	return &Server{
		identity: identity,
		node:     node,
		grpc:     grpc.NewServer(),
	}
}

// Start removes any stale socket file at socketPath, binds a Unix listener,
// registers the CSI services, and serves until Stop is called or Serve
// returns an error.
func (s *Server) Start(socketPath string) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("failed to remove stale socket %s: %w", socketPath, err)
	}

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", socketPath, err)
	}

	csi.RegisterIdentityServer(s.grpc, s.identity)
	csi.RegisterNodeServer(s.grpc, s.node)

	log.WithComponent("csiserver").Info().Str("socket", socketPath).Msg("CSI gRPC server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}
