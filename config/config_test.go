package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factord.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, uint32(100), cfg.FeeBasisPoints)
	require.True(t, cfg.AllowInsecure)
	require.FileExists(t, path)

	// Loading the generated file again round-trips.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Accounts, again.Accounts)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factord.toml")
	body := `
RPCAddress = ":9090"
DataDir = "/var/lib/factorhub"
FeeBasisPoints = 250
AuthSecret = "sekrit"
Paused = ["marketplace"]

[Accounts]
Marketplace = "marketplace.test"
Escrow = "escrow.test"
Custody = "custody.test"
Admin = "admin.test"

[Logging]
Environment = "prod"
File = "/var/log/factord.log"
MaxSizeMB = 64
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.RPCAddress)
	require.Equal(t, uint32(250), cfg.FeeBasisPoints)
	require.Equal(t, "escrow.test", cfg.Accounts.Escrow)
	require.Equal(t, "prod", cfg.Logging.Environment)
	require.True(t, cfg.PausedModules()["marketplace"])
	require.False(t, cfg.PausedModules()["escrow"])
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			RPCAddress:     ":8080",
			DataDir:        "./data",
			FeeBasisPoints: 100,
			AuthSecret:     "sekrit",
			Accounts: Accounts{
				Marketplace: "m", Escrow: "e", Custody: "c", Admin: "a",
			},
		}
	}

	cfg := base()
	cfg.FeeBasisPoints = 1001
	require.ErrorContains(t, cfg.Validate(), "FeeBasisPoints")

	cfg = base()
	cfg.AuthSecret = ""
	require.ErrorContains(t, cfg.Validate(), "AuthSecret")

	cfg = base()
	cfg.AuthSecret = ""
	cfg.AllowInsecure = true
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Paused = []string{"lending"}
	require.ErrorContains(t, cfg.Validate(), "unknown module")

	cfg = base()
	cfg.Accounts.Custody = ""
	require.ErrorContains(t, cfg.Validate(), "Accounts.Custody")
}
