package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cartctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"quote"},
		{"migrate"},
		{"stored", "show"},
		{"stored", "erase"},
		{"stored", "restore"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, "", envFlag.DefValue)
}

func TestStoredFlags(t *testing.T) {
	cmd := NewRootCommand()
	storedCmd, _, err := cmd.Find([]string{"stored"})
	require.NoError(t, err)

	instanceFlag := storedCmd.PersistentFlags().Lookup("instance")
	require.NotNil(t, instanceFlag)
	assert.Equal(t, "default", instanceFlag.DefValue)

	require.NotNil(t, storedCmd.PersistentFlags().Lookup("identifier"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "yaml", "quote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestMissingEnvFile(t *testing.T) {
	_, err := execute(t, "--env-file", "/nonexistent/.env", "quote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "godotenv.Load")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(t.Context())
	return buf.String(), err
}
