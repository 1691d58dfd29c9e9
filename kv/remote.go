package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// StoreServiceName is the fully-qualified gRPC service name.
const StoreServiceName = "captify.kv.v1.Store"

const runMethod = "/" + StoreServiceName + "/Run"

// StoreServer is the server side of the Store service. Requests and
// responses travel as google.protobuf.Struct documents shaped like Request
// and Response.
type StoreServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// StoreServiceDesc describes the Store service for grpc.Server.RegisterService.
var StoreServiceDesc = grpc.ServiceDesc{
	ServiceName: StoreServiceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler:    storeRunHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "captify/kv/v1/store.proto",
}

func storeRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: runMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterStoreServer registers srv on s.
func RegisterStoreServer(s grpc.ServiceRegistrar, srv StoreServer) {
	s.RegisterService(&StoreServiceDesc, srv)
}

// Service exposes a Backend as a StoreServer.
type Service struct {
	backend Backend
	logger  *slog.Logger
}

// NewService wraps backend for serving over gRPC.
func NewService(backend Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// Run decodes the request document, runs it and encodes the response.
func (s *Service) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	resp, err := s.backend.Run(ctx, req)
	if err != nil {
		s.logger.Error("backend request failed",
			slog.String("operation", req.Operation),
			slog.String("table", req.Table),
			slog.String("error", err.Error()))
		return nil, status.Errorf(codes.Unavailable, "backend: %v", err)
	}
	if !resp.Success {
		s.logger.Debug("backend request unsuccessful",
			slog.String("operation", req.Operation),
			slog.String("table", req.Table),
			slog.String("error", resp.Error))
	}

	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// RemoteClient is a Backend that forwards requests to a Store server.
type RemoteClient struct {
	conn  grpc.ClientConnInterface
	owned *grpc.ClientConn
}

// NewRemoteClient dials target with the given dial options.
func NewRemoteClient(target string, opts ...grpc.DialOption) (*RemoteClient, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client for %s: %w", target, err)
	}
	return &RemoteClient{conn: conn, owned: conn}, nil
}

// NewRemoteClientConn builds a client over an existing connection. The
// connection is not closed by Close.
func NewRemoteClientConn(conn grpc.ClientConnInterface) *RemoteClient {
	return &RemoteClient{conn: conn}
}

// Run forwards req to the server.
func (c *RemoteClient) Run(ctx context.Context, req Request) (*Response, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, runMethod, in, out); err != nil {
		return nil, fmt.Errorf("store %s %s: %w", req.Operation, req.Table, err)
	}

	var resp Response
	if err := fromStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Close closes the connection if the client created it.
func (c *RemoteClient) Close() error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

// toStruct converts v to a Struct by way of its JSON form, which also
// normalizes typed slices and numbers into the shapes structpb accepts.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
