package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"Go2NetTop/internal/engine/flowengine"
)

// Client calls a remote Monitor service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to the monitor at target. Without options the
// connection is insecure.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req any, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

// ListFlows returns the busiest flows.
func (c *Client) ListFlows(ctx context.Context, req ListRequest) ([]flowengine.FlowView, error) {
	var resp flowList
	if err := c.call(ctx, ListFlowsMethod, req, &resp); err != nil {
		return nil, err
	}
	return resp.Flows, nil
}

// ListHosts returns the busiest hosts.
func (c *Client) ListHosts(ctx context.Context, req ListRequest) ([]flowengine.HostView, error) {
	var resp hostList
	if err := c.call(ctx, ListHostsMethod, req, &resp); err != nil {
		return nil, err
	}
	return resp.Hosts, nil
}

// Totals returns the engine counters.
func (c *Client) Totals(ctx context.Context) (flowengine.Totals, error) {
	var resp flowengine.Totals
	err := c.call(ctx, TotalsMethod, struct{}{}, &resp)
	return resp, err
}
