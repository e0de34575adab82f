package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSystemInfoReportsHostnameAndNodeID(t *testing.T) {
	s := &Service{nodeID: "node-a", startedAt: time.Now().Add(-5 * time.Second)}
	info := s.getSystemInfo()

	assert.Equal(t, "node-a", info.NodeID)
	assert.NotEmpty(t, info.Hostname)
	assert.Contains(t, info.Uptime, "s")
}
