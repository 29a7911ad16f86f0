package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplens/courtsource/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"get", "datasets", "cache", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "courtsource", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestGetCommand_Flags(t *testing.T) {
	flag := getCmd.Flags().Lookup("filter")
	require.NotNil(t, flag, "get command should have --filter flag")

	flag = getCmd.Flags().Lookup("allow-stale")
	require.NotNil(t, flag, "get command should have --allow-stale flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{
		"season=2023-24",
		"game_ids=G1",
		"game_ids=G2",
	})
	require.NoError(t, err)
	assert.Equal(t, "2023-24", filters["season"])
	assert.Equal(t, []string{"G1", "G2"}, filters["game_ids"])
}

func TestParseFilters_Invalid(t *testing.T) {
	_, err := parseFilters([]string{"season"})
	require.Error(t, err)

	_, err = parseFilters([]string{"=2023-24"})
	require.Error(t, err)
}

func TestParseFilters_Empty(t *testing.T) {
	filters, err := parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	old := cfg
	t.Cleanup(func() { cfg = old })

	cfg = &config.Config{Store: config.StoreConfig{Driver: "bolt"}}

	_, err := initStore(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}
