package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "shardstore", cmd.Use)
	assert.Contains(t, cmd.Long, "SQLite shards")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "get", "store", "validate", "read", "prune", "config"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"datastore", "shards", "job-name", "profile"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestGetCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	getCmd, _, err := cmd.Find([]string{"get"})
	require.NoError(t, err)

	payloadFlag := getCmd.Flags().Lookup("payload")
	require.NotNil(t, payloadFlag)
	assert.Equal(t, "p", payloadFlag.Shorthand)
	assert.Equal(t, "stringArray", payloadFlag.Value.Type())

	fileFlag := getCmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag)
	assert.Equal(t, "f", fileFlag.Shorthand)
}

func TestReadCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	readCmd, _, err := cmd.Find([]string{"read"})
	require.NoError(t, err)

	for _, name := range []string{"shard-key", "validated", "limit"} {
		assert.NotNil(t, readCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "config", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}
