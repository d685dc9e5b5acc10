// Package rpc exposes the live monitor state over gRPC. Messages are
// google.protobuf.Struct values carrying the JSON form of the engine views.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"Go2NetTop/internal/engine/flowengine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nettop.v1.Monitor"

// Full method names.
const (
	ListFlowsMethod = "/" + ServiceName + "/ListFlows"
	ListHostsMethod = "/" + ServiceName + "/ListHosts"
	TotalsMethod    = "/" + ServiceName + "/Totals"
)

// MonitorServer is the server API for the Monitor service.
type MonitorServer interface {
	ListFlows(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListHosts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Totals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMonitorServer registers srv on s.
func RegisterMonitorServer(s grpc.ServiceRegistrar, srv MonitorServer) {
	s.RegisterService(&monitorServiceDesc, srv)
}

type unaryMethod func(MonitorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MonitorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MonitorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var monitorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListFlows", Handler: unaryHandler(ListFlowsMethod, MonitorServer.ListFlows)},
		{MethodName: "ListHosts", Handler: unaryHandler(ListHostsMethod, MonitorServer.ListHosts)},
		{MethodName: "Totals", Handler: unaryHandler(TotalsMethod, MonitorServer.Totals)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nettop/v1/monitor.proto",
}

// ListRequest selects the ordering and size of a listing.
type ListRequest struct {
	Sort  string `json:"sort,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}

type flowList struct {
	Flows []flowengine.FlowView `json:"flows"`
}

type hostList struct {
	Hosts []flowengine.HostView `json:"hosts"`
}
