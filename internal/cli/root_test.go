package cli

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mlp", cmd.Use)
	assert.Contains(t, cmd.Long, "canary")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"registry", "list"},
		{"registry", "register"},
		{"registry", "promote"},
		{"registry", "set-alias"},
		{"registry", "rollback"},
		{"registry", "history"},
		{"schedule", "list"},
		{"schedule", "run"},
		{"jobs", "list"},
		{"jobs", "show"},
		{"route"},
		{"batch"},
		{"health"},
		{"version"},
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestRollbackCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	rollbackCmd, _, err := cmd.Find([]string{"registry", "rollback"})
	require.NoError(t, err)

	stepsFlag := rollbackCmd.Flags().Lookup("steps")
	require.NotNil(t, stepsFlag)
	assert.Equal(t, "1", stepsFlag.DefValue)
}

func TestJobsListCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	listCmd, _, err := cmd.Find([]string{"jobs", "list"})
	require.NoError(t, err)

	require.NotNil(t, listCmd.Flags().Lookup("dag"))
	limitFlag := listCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestBatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	batchCmd, _, err := cmd.Find([]string{"batch"})
	require.NoError(t, err)

	inputFlag := batchCmd.Flags().Lookup("input")
	require.NotNil(t, inputFlag)
	assert.Equal(t, "i", inputFlag.Shorthand)

	outputFlag := batchCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	modelFlag := batchCmd.Flags().Lookup("model")
	require.NotNil(t, modelFlag)
	assert.Equal(t, "latest", modelFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "version"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersionCommand(t *testing.T) {
	e := newCLI(t)
	assert.Equal(t, "mlp dev\n", e.mustRun(t, "version"))
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		debug   bool
		warn    bool
	}{
		{"info", false, false, true},
		{"debug", false, true, true},
		{"error", false, false, false},
		{"error", true, true, true},
	}
	for _, tt := range tests {
		l := newLogger(nil, tt.level, tt.verbose)
		h := l.Handler()
		assert.Equal(t, tt.debug, h.Enabled(context.Background(), slog.LevelDebug), "debug for %s/%t", tt.level, tt.verbose)
		assert.Equal(t, tt.warn, h.Enabled(context.Background(), slog.LevelWarn), "warn for %s/%t", tt.level, tt.verbose)
	}
}
