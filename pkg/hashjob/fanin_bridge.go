package hashjob

import (
	"io"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/clustercore/clustercore/pkg/hashjob/fanin"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/types"
)

// FanInServer adapts Coordinator onto fanin.HashFanInServer, decoding
// each streamed structpb.Struct into a chunk progress update applied
// immediately, without waiting for gossip to carry it.
type FanInServer struct {
	coordinator *Coordinator
}

// NewFanInServer builds a FanInServer reporting progress into c.
func NewFanInServer(c *Coordinator) *FanInServer {
	return &FanInServer{coordinator: c}
}

// ReportProgress drains a worker's progress stream until it closes,
// applying each update, then acknowledges with a count.
func (s *FanInServer) ReportProgress(stream fanin.HashFanIn_ReportProgressServer) error {
	var received int64

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		fields := msg.GetFields()
		jobID := fields["job_id"].GetStringValue()
		chunkID := fields["chunk_id"].GetStringValue()
		status := types.ChunkStatus(fields["status"].GetStringValue())
		progress := fields["progress"].GetNumberValue()

		if jobID == "" || chunkID == "" {
			log.WithComponent("hashjob").Warn().Msg("fanin: dropping malformed progress update")
			continue
		}

		s.coordinator.ApplyProgress(jobID, chunkID, status, progress)
		received++
	}

	ack, err := structpb.NewStruct(map[string]any{"received": received})
	if err != nil {
		return err
	}
	return stream.SendAndClose(ack)
}

// EncodeProgress builds the wire struct a worker streams for one
// chunk's progress update.
func EncodeProgress(jobID, chunkID string, status types.ChunkStatus, progress float64) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"job_id":   jobID,
		"chunk_id": chunkID,
		"status":   string(status),
		"progress": progress,
	})
}
