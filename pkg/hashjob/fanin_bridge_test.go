package hashjob

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/clustercore/clustercore/pkg/types"
)

// fakeReportProgressServer feeds a fixed sequence of messages to
// FanInServer.ReportProgress without needing a real grpc.ServerStream.
type fakeReportProgressServer struct {
	grpcServerStreamStub
	msgs []*structpb.Struct
	pos  int
	acks []*structpb.Struct
}

func (s *fakeReportProgressServer) Recv() (*structpb.Struct, error) {
	if s.pos >= len(s.msgs) {
		return nil, io.EOF
	}
	m := s.msgs[s.pos]
	s.pos++
	return m, nil
}

func (s *fakeReportProgressServer) SendAndClose(m *structpb.Struct) error {
	s.acks = append(s.acks, m)
	return nil
}

func TestEncodeProgressRoundTripsThroughReportProgress(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))
	job, err := c.CreateJob(CreateJobParams{
		Mode: types.HashModeBrute, Charset: "ab", Length: 2, HashAlgo: "sha256",
		TargetHashes: []string{"x"}, BaseChunkSize: 10,
	})
	require.NoError(t, err)

	var chunkID string
	c.mu.Lock()
	for id := range c.batches[job.JobID].Chunks {
		chunkID = id
		break
	}
	c.mu.Unlock()

	msg, err := EncodeProgress(job.JobID, chunkID, types.ChunkWorking, 0.42)
	require.NoError(t, err)

	srv := NewFanInServer(c)
	stream := &fakeReportProgressServer{msgs: []*structpb.Struct{msg}}
	require.NoError(t, srv.ReportProgress(stream))

	require.Len(t, stream.acks, 1)
	assert.Equal(t, float64(1), stream.acks[0].GetFields()["received"].GetNumberValue())

	c.mu.Lock()
	got := c.batches[job.JobID].Chunks[chunkID]
	c.mu.Unlock()
	assert.Equal(t, types.ChunkWorking, got.Status)
	assert.Equal(t, 0.42, got.Progress)
}

func TestReportProgressDropsMalformedUpdates(t *testing.T) {
	c := NewCoordinator(testGossip(t, "coord", types.RoleCoordinator))
	bad, err := structpb.NewStruct(map[string]any{"status": "working"})
	require.NoError(t, err)

	srv := NewFanInServer(c)
	stream := &fakeReportProgressServer{msgs: []*structpb.Struct{bad}}
	require.NoError(t, srv.ReportProgress(stream))
	assert.Len(t, stream.acks, 1)
	assert.Equal(t, float64(0), stream.acks[0].GetFields()["received"].GetNumberValue())
}
