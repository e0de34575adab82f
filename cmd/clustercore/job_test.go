package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobClientRequiresAddrAndStateDir(t *testing.T) {
	cmd := &cobra.Command{Use: "job"}
	cmd.Flags().String("addr", "", "")
	cmd.Flags().String("state-dir", "", "")

	_, err := jobClient(cmd)
	assert.ErrorContains(t, err, "addr")

	require.NoError(t, cmd.Flags().Set("addr", "https://127.0.0.1:9000"))
	require.NoError(t, cmd.Flags().Set("state-dir", t.TempDir()))
	_, err = jobClient(cmd)
	assert.ErrorContains(t, err, "load leaf bundle")
}
