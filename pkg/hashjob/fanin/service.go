package fanin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// HashFanInServer is implemented by the coordinator side: one
// client-streaming RPC receiving a worker's ChunkProgress updates and
// acknowledging once the worker closes the stream.
type HashFanInServer interface {
	ReportProgress(HashFanIn_ReportProgressServer) error
}

// HashFanIn_ReportProgressServer is the server-side handle for an
// in-flight ReportProgress call.
type HashFanIn_ReportProgressServer interface {
	SendAndClose(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

type hashFanInReportProgressServer struct {
	grpc.ServerStream
}

func (s *hashFanInReportProgressServer) SendAndClose(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func (s *hashFanInReportProgressServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func reportProgressHandler(srv any, stream grpc.ServerStream) error {
	return srv.(HashFanInServer).ReportProgress(&hashFanInReportProgressServer{stream})
}

// ServiceDesc is the manual equivalent of a protoc-gen-go-grpc
// _ServiceDesc: no generated code exists for this service, so it is
// hand-built directly against grpc.ServiceDesc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "hashjob.HashFanIn",
	HandlerType: (*HashFanInServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ReportProgress",
			Handler:       reportProgressHandler,
			ClientStreams: true,
		},
	},
	Metadata: "pkg/hashjob/fanin/hashfanin.proto",
}

// RegisterHashFanInServer registers srv on s.
func RegisterHashFanInServer(s grpc.ServiceRegistrar, srv HashFanInServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// HashFanInClient is the worker side: stream ChunkProgress updates,
// get one Ack back on close.
type HashFanInClient interface {
	ReportProgress(ctx context.Context, opts ...grpc.CallOption) (HashFanIn_ReportProgressClient, error)
}

// HashFanIn_ReportProgressClient is the client-side handle for an
// in-flight ReportProgress call.
type HashFanIn_ReportProgressClient interface {
	Send(*structpb.Struct) error
	CloseAndRecv() (*structpb.Struct, error)
	grpc.ClientStream
}

type hashFanInClient struct {
	cc grpc.ClientConnInterface
}

// NewHashFanInClient builds a client dispatching over cc.
func NewHashFanInClient(cc grpc.ClientConnInterface) HashFanInClient {
	return &hashFanInClient{cc: cc}
}

func (c *hashFanInClient) ReportProgress(ctx context.Context, opts ...grpc.CallOption) (HashFanIn_ReportProgressClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/hashjob.HashFanIn/ReportProgress", opts...)
	if err != nil {
		return nil, err
	}
	return &hashFanInReportProgressClient{stream}, nil
}

type hashFanInReportProgressClient struct {
	grpc.ClientStream
}

func (c *hashFanInReportProgressClient) Send(m *structpb.Struct) error {
	return c.ClientStream.SendMsg(m)
}

func (c *hashFanInReportProgressClient) CloseAndRecv() (*structpb.Struct, error) {
	if err := c.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(structpb.Struct)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
