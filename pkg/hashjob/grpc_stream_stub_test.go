package hashjob

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// grpcServerStreamStub is a no-op grpc.ServerStream embedded by test
// fakes that only care about the ReportProgress/SendAndClose methods
// fanin.HashFanIn_ReportProgressServer adds on top.
type grpcServerStreamStub struct{}

func (grpcServerStreamStub) SetHeader(metadata.MD) error { return nil }
func (grpcServerStreamStub) SendHeader(metadata.MD) error { return nil }
func (grpcServerStreamStub) SetTrailer(metadata.MD)       {}
func (grpcServerStreamStub) Context() context.Context     { return context.Background() }
func (grpcServerStreamStub) SendMsg(m any) error           { return nil }
func (grpcServerStreamStub) RecvMsg(m any) error           { return nil }
