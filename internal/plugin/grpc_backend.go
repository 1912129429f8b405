package plugin

import (
	"context"
	"encoding/json"

	hcplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/felixgeelhaar/memochat/internal/provider"
)

// Requests and responses cross the wire as JSON; there are no generated
// protobuf types for the backend service.
const codecName = "memochat-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const completeMethod = "/memochat.Backend/Complete"

type backendServer interface {
	Complete(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

var backendServiceDesc = grpc.ServiceDesc{
	ServiceName: "memochat.Backend",
	HandlerType: (*backendServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Complete", Handler: completeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "memochat/backend",
}

func completeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(provider.Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(backendServer).Complete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: completeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(backendServer).Complete(ctx, req.(*provider.Request))
	}
	return interceptor(ctx, in, info, handler)
}

// BackendGRPCPlugin is the implementation of hcplugin.GRPCPlugin so we can serve/consume a backend.
type BackendGRPCPlugin struct {
	hcplugin.Plugin
	Impl provider.Provider
}

func (p *BackendGRPCPlugin) GRPCServer(broker *hcplugin.GRPCBroker, s *grpc.Server) error {
	s.RegisterService(&backendServiceDesc, &BackendGRPCServer{Impl: p.Impl})
	return nil
}

func (p *BackendGRPCPlugin) GRPCClient(ctx context.Context, broker *hcplugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return &BackendGRPCClient{conn: c}, nil
}

// BackendGRPCClient talks to a backend over gRPC.
type BackendGRPCClient struct {
	conn grpc.ClientConnInterface
}

func (c *BackendGRPCClient) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	out := new(provider.Response)
	if err := c.conn.Invoke(ctx, completeMethod, &req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// BackendGRPCServer is the gRPC server that calls the local implementation.
type BackendGRPCServer struct {
	Impl provider.Provider
}

func (s *BackendGRPCServer) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return s.Impl.Complete(ctx, *req)
}
