// Package grpc provides the gRPC API for Fortunate number searches.
//
// The service is registered from a hand-written descriptor over protobuf
// well-known types, so no generated code is needed:
//
//	service FortunateService {
//	  rpc Find(google.protobuf.UInt64Value) returns (google.protobuf.Struct);
//	}
package grpc

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/service"
)

const (
	// ServiceName is the fully qualified service name.
	ServiceName = "fortunate.v1.FortunateService"
	// FindMethod is the full method name of Find.
	FindMethod = "/" + ServiceName + "/Find"

	requestIDKey = "x-request-id"
	workersKey   = "x-workers"
)

// FortunateServer is the server API for FortunateService.
type FortunateServer interface {
	Find(ctx context.Context, n *wrapperspb.UInt64Value) (*structpb.Struct, error)
}

// ServiceDesc describes FortunateService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FortunateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Find", Handler: findHandler},
	},
	Metadata: "fortunate/v1/fortunate.proto",
}

func findHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FortunateServer).Find(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FindMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FortunateServer).Find(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterFortunateServer registers srv on s.
func RegisterFortunateServer(s grpc.ServiceRegistrar, srv FortunateServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Finder is the part of service.Service the gRPC server needs.
type Finder interface {
	Find(ctx context.Context, n, workers int) (*service.Result, error)
}

// Server implements FortunateServer on top of the search service.
type Server struct {
	svc Finder
}

// NewServer creates a new gRPC server implementation.
func NewServer(svc Finder) *Server {
	return &Server{svc: svc}
}

// Find proves F(n). The optional x-workers metadata value overrides the pool size.
func (s *Server) Find(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	n := req.GetValue()
	if n == 0 || n > math.MaxInt32 {
		return nil, status.Errorf(codes.InvalidArgument, "index %d out of range", n)
	}
	workers, err := extractWorkers(ctx)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.svc.Find(ctx, int(n), workers)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"n":                  res.Index,
		"fortunate":          res.Fortunate,
		"elapsed_ms":         res.Elapsed.Milliseconds(),
		"ranges_tested":      res.RangesTested,
		"candidates_tested":  res.CandidatesTested,
		"candidates_skipped": res.CandidatesSkipped,
		"workers":            res.Workers,
		"cached":             res.Cached,
		"run_id":             res.RunID,
		"request_id":         requestID,
	})
}

func toStatus(err error) error {
	switch errors.GetCode(err) {
	case errors.CodeInvalidIndex, errors.CodeInvalidConfig:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.CodeSearchCancelled:
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(requestIDKey); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

func extractWorkers(ctx context.Context) (int, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, nil
	}
	values := md.Get(workersKey)
	if len(values) == 0 {
		return 0, nil
	}
	w, err := strconv.Atoi(values[0])
	if err != nil || w < 0 {
		return 0, fmt.Errorf("invalid %s %q", workersKey, values[0])
	}
	return w, nil
}

// Client calls FortunateService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Find calls FortunateService.Find.
func (c *Client) Find(ctx context.Context, n uint64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FindMethod, wrapperspb.UInt64(n), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
