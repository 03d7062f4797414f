package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)

	assert.Contains(t, out, "docsync")
	assert.Contains(t, out, "Version:    dev")
}

func TestDemoCommand_BuiltinScenarios(t *testing.T) {
	out, err := execute(t, "demo")
	require.NoError(t, err)

	assert.Contains(t, out, "offline-convergence")
	assert.Contains(t, out, "strict-first-wins")
	assert.Contains(t, out, "PASS")
	assert.NotContains(t, out, "FAIL")
}

func TestDemoCommand_MissingScenarioFile(t *testing.T) {
	_, err := execute(t, "demo", "--scenario", "no-such-file.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load scenario")
}

func TestDemoCommand_Contention(t *testing.T) {
	out, err := execute(t, "demo", "--contention", "3", "--edits", "2", "--seed", "7")
	require.NoError(t, err)

	assert.Contains(t, out, "converged")
}
