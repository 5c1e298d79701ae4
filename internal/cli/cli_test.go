package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	versionCmd.Run(versionCmd, nil)
	require.Contains(t, buf.String(), "TradeWatch")
	require.Contains(t, buf.String(), version)
}

func TestBuildAppFailsWithoutConfig(t *testing.T) {
	_, err := buildApp(GlobalFlags{Config: "/nonexistent/config.yaml"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load configuration")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "sync", "connect", "connections", "disconnect"} {
		require.True(t, names[want], want)
	}
}
