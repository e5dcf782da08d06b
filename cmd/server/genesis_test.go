package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGenesisCheck_ExampleFile(t *testing.T) {
	out, err := runCLI(t, "genesis", "check", "-f", filepath.Join("..", "..", "genesis.example.toml"))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "250 bps to 0xtreasury")
	assert.Contains(t, out, "1000000 across 2 holders")
}

func TestGenesisCheck_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(path, []byte("deployer = \"0xdeployer\"\n[fee]\nfee_bps = 20000\n"), 0o600))

	_, err := runCLI(t, "genesis", "check", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee.fee_bps")
}

func TestGenesisCheck_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(path, []byte("deployer = \"0xdeployer\"\nfee_percent = 3\n"), 0o600))

	_, err := runCLI(t, "genesis", "check", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_percent")
}
