package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testModels = "testdata/models"
	testSeed   = "testdata/products.yaml"
)

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "quarry", cmd.Use)
	assert.Contains(t, cmd.Long, "parameterized SQL")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "plan", "query", "graphql", "seed", "test"}

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
}

func TestQueryFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		command string
		flags   []string
	}{
		{"plan", []string{"default-limit", "max-limit", "graph", "dialect"}},
		{"query", []string{"db", "default-limit", "max-limit", "graph"}},
		{"graphql", []string{"db", "default-limit", "max-limit", "vars"}},
		{"seed", []string{"db"}},
		{"test", []string{"default-limit", "max-limit", "update", "filter"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "flag --%s", name)
			}
		})
	}

	plan, _, err := cmd.Find([]string{"plan"})
	require.NoError(t, err)
	assert.Equal(t, "100", plan.Flags().Lookup("default-limit").DefValue)
	assert.Equal(t, "1000", plan.Flags().Lookup("max-limit").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	_, err := execute(t, cmd, "--format", "xml", "compile", testModels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRequestIDInJSONResponses(t *testing.T) {
	cmd := NewRootCommand()
	out, err := execute(t, cmd, "--format", "json", "compile", testModels)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	require.Len(t, resp.RequestID, 36)
	assert.Equal(t, "7", resp.RequestID[14:15], "request ids are UUIDv7")
}

func TestVerboseLoggingCarriesRequestID(t *testing.T) {
	cmd := NewRootCommand()
	errBuf := &bytes.Buffer{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"-v", "plan", testModels, "products", "nope=1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, errBuf.String(), "request_id=")
	assert.Contains(t, errBuf.String(), "kind=UNKNOWN_FIELD")
}
