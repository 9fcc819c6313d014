package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bookstore", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"serve", "migrate", "sweep", "check"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	memory := cmd.PersistentFlags().Lookup("memory")
	require.NotNil(t, memory)
	assert.Equal(t, "false", memory.DefValue)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("no-sweep"))
}

func TestCheckOnEmptyStore(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--memory"})
	require.NoError(t, cmd.Execute())

	var report struct {
		Probes     []string `json:"probes"`
		Violations []any    `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Len(t, report.Probes, 4)
	assert.Empty(t, report.Violations)
}

func TestSweepOnEmptyStore(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sweep", "--memory"})
	require.NoError(t, cmd.Execute())

	var report struct {
		Expired int `json:"expired"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Zero(t, report.Expired)
}
