package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lzrecv", cmd.Use)
	assert.Contains(t, cmd.Long, "trusted peer")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"config", "validate"}, {"config", "apply"}, {"config", "show"},
		{"resolve"}, {"info"}, {"verify"}, {"execute"}, {"run"},
		{"ledger"}, {"events"}, {"failures"}, {"trace"}, {"replay"}, {"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	variantFlag := cmd.PersistentFlags().Lookup("variant")
	require.NotNil(t, variantFlag)
	assert.Equal(t, "", variantFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"input", "acks", "metrics-addr"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
}

func TestInvalidGlobalFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"format", []string{"--format", "xml", "info"}, `invalid format "xml"`},
		{"variant", []string{"--variant", "swap", "info"}, `unknown variant "swap"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewRootCommand(), "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMissingDatabase(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag "db" not set`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
