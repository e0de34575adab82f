package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServeTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("node-id", "", "")
	cmd.Flags().String("bind-address", "0.0.0.0", "")
	cmd.Flags().Int("port", 9000, "")
	cmd.Flags().Bool("coordinator", false, "")
	cmd.Flags().StringSlice("coordinator-addr", nil, "")
	cmd.Flags().String("state-dir", "", "")
	cmd.Flags().String("services-dir", "", "")
	cmd.Flags().String("jwt-secret", "", "")
	return cmd
}

func TestLoadServeConfigRequiresNodeIDAndSecret(t *testing.T) {
	cmd := newServeTestCmd()
	_, err := loadServeConfig(cmd)
	assert.ErrorContains(t, err, "node-id")

	require.NoError(t, cmd.Flags().Set("node-id", "node-a"))
	_, err = loadServeConfig(cmd)
	assert.ErrorContains(t, err, "jwt-secret")
}

func TestLoadServeConfigOverlaysFlagsOntoDefaults(t *testing.T) {
	cmd := newServeTestCmd()
	require.NoError(t, cmd.Flags().Set("node-id", "node-a"))
	require.NoError(t, cmd.Flags().Set("jwt-secret", "s3cr3t"))
	require.NoError(t, cmd.Flags().Set("port", "9500"))
	require.NoError(t, cmd.Flags().Set("coordinator", "true"))
	require.NoError(t, cmd.Flags().Set("coordinator-addr", "10.0.0.1:9000"))

	cfg, err := loadServeConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "s3cr3t", cfg.JWTSecret)
	assert.Equal(t, 9500, cfg.Port)
	assert.True(t, cfg.CoordinatorMode)
	assert.Equal(t, []string{"10.0.0.1:9000"}, cfg.CoordinatorAddresses)
	assert.Equal(t, "0.0.0.0", cfg.BindAddress) // untouched default
}

func TestLoadServeConfigLeavesUnsetFlagsAtDefault(t *testing.T) {
	cmd := newServeTestCmd()
	require.NoError(t, cmd.Flags().Set("node-id", "node-a"))
	require.NoError(t, cmd.Flags().Set("jwt-secret", "s3cr3t"))

	cfg, err := loadServeConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.CoordinatorMode)
}
