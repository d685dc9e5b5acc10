package rpc

import (
	"context"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"Go2NetTop/internal/engine/flowengine"
)

// Monitor is the live state served. *flowengine.Engine implements it.
type Monitor interface {
	Flows() []flowengine.FlowView
	Hosts() []flowengine.HostView
	Totals() flowengine.Totals
}

// Server serves the Monitor service.
type Server struct {
	monitor Monitor
	grpc    *grpc.Server
}

// NewServer creates a gRPC server backed by monitor.
func NewServer(monitor Monitor, opts ...grpc.ServerOption) *Server {
	s := &Server{monitor: monitor, grpc: grpc.NewServer(opts...)}
	RegisterMonitorServer(s.grpc, s)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("gRPC server listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop waits for pending calls and stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	log.Println("gRPC server stopped.")
}

func listRequest(in *structpb.Struct) (flowengine.SortKey, int, error) {
	var req ListRequest
	if in != nil {
		if err := fromStruct(in, &req); err != nil {
			return "", 0, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	by, ok := flowengine.ParseSortKey(req.Sort)
	if !ok {
		return "", 0, status.Errorf(codes.InvalidArgument, "unsupported sort: %s", req.Sort)
	}
	if req.Limit < 0 {
		return "", 0, status.Errorf(codes.InvalidArgument, "invalid limit: %d", req.Limit)
	}
	return by, req.Limit, nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ListFlows implements MonitorServer.
func (s *Server) ListFlows(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	by, limit, err := listRequest(in)
	if err != nil {
		return nil, err
	}
	return encode(flowList{Flows: flowengine.TopFlows(s.monitor.Flows(), by, limit)})
}

// ListHosts implements MonitorServer.
func (s *Server) ListHosts(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	by, limit, err := listRequest(in)
	if err != nil {
		return nil, err
	}
	return encode(hostList{Hosts: flowengine.TopHosts(s.monitor.Hosts(), by, limit)})
}

// Totals implements MonitorServer.
func (s *Server) Totals(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.monitor.Totals())
}
