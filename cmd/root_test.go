package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "import", "migrate", "enrich", "dlq", "leak"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "credleak", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Equal(t, version, rootCmd.Version)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"source", "leak-id", "ticket", "summary", "reporter", "source-name"} {
		require.NotNil(t, importCmd.Flags().Lookup(name), "import command should have --%s", name)
	}
	assert.Error(t, importCmd.Args(importCmd, nil), "a file or URL is required")
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestDLQCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range dlqCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["status"])
	assert.True(t, names["retry"])

	flag := dlqRetryCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)
}

func TestLeakCommand_HasList(t *testing.T) {
	require.Len(t, leakCmd.Commands(), 1)
	assert.Equal(t, "list", leakCmd.Commands()[0].Name())
}
