package ipc

import (
	"context"
	"errors"
	"net"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service served on the daemon socket.
const ServiceName = "ammlsh.v1.Analysis"

// Full method names.
const (
	MethodHash   = "/" + ServiceName + "/Hash"
	MethodSearch = "/" + ServiceName + "/Search"
	MethodStatus = "/" + ServiceName + "/Status"
)

// ErrInvalidRequest marks backend errors caused by the request rather than
// the daemon. They are reported as codes.InvalidArgument.
var ErrInvalidRequest = errors.New("ipc: invalid request")

// Backend answers IPC requests.
type Backend interface {
	Hash(ctx context.Context, req PoolRequest) (HashResponse, error)
	Search(ctx context.Context, req PoolRequest) (SearchResponse, error)
	Status() StatusResponse
}

// AnalysisServer is the server side of the Analysis service.
type AnalysisServer interface {
	Hash(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Hash", Handler: unaryHandler(MethodHash, AnalysisServer.Hash)},
		{MethodName: "Search", Handler: unaryHandler(MethodSearch, AnalysisServer.Search)},
		{MethodName: "Status", Handler: unaryHandler(MethodStatus, AnalysisServer.Status)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ammlsh/v1/analysis",
}

func unaryHandler(
	method string,
	call func(AnalysisServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AnalysisServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AnalysisServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Server is the IPC gRPC server.
type Server struct {
	sockPath string
	backend  Backend
	grpc     *grpc.Server
	listener net.Listener
}

// NewServer listens on sockPath, replacing any stale socket file.
func NewServer(sockPath string, backend Backend) (*Server, error) {
	os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		sockPath: sockPath,
		backend:  backend,
		grpc:     grpc.NewServer(),
		listener: listener,
	}
	s.grpc.RegisterService(&serviceDesc, s)

	return s, nil
}

// Start begins serving requests.
func (s *Server) Start() error {
	return s.grpc.Serve(s.listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	os.Remove(s.sockPath)
}

// Hash implements AnalysisServer.
func (s *Server) Hash(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := poolRequestFrom(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.backend.Hash(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp.toStruct(), nil
}

// Search implements AnalysisServer.
func (s *Server) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := poolRequestFrom(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.backend.Search(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp.toStruct(), nil
}

// Status implements AnalysisServer.
func (s *Server) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.backend.Status().toStruct(), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
