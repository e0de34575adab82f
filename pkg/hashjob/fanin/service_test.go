package fanin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceDescDeclaresClientStreamingReportProgress(t *testing.T) {
	assert.Equal(t, "hashjob.HashFanIn", ServiceDesc.ServiceName)
	require := assert.New(t)
	require.Len(ServiceDesc.Streams, 1)

	stream := ServiceDesc.Streams[0]
	require.Equal("ReportProgress", stream.StreamName)
	require.True(stream.ClientStreams)
	require.False(stream.ServerStreams)
	require.NotNil(stream.Handler)
}
