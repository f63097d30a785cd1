package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lnsim/ln-network-runner/server"
	"github.com/lnsim/ln-network-runner/utils/constants"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) server.Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addFlags(fs)
	require.NoError(t, fs.Parse(args))
	v, err := buildViper(fs)
	require.NoError(t, err)
	return buildConfig(v)
}

func TestDefaults(t *testing.T) {
	require := require.New(t)
	cfg := parse(t)
	require.Equal(constants.DefaultPort, cfg.Port)
	require.Equal(constants.DefaultGwPort, cfg.GwPort)
	require.Equal(server.DriverSimulated, cfg.Driver)
	require.True(cfg.RequireImages)
	require.True(cfg.RedirectNodesOutput)
	require.Equal(filepath.Join(constants.BaseDataDir, "db"), cfg.DBPath)
	require.Equal("bitcoind", cfg.Executables[constants.DefaultBitcoinImage])
	require.Equal("lnd", cfg.Executables[constants.DefaultLightningImage])
	require.ElementsMatch([]string{constants.DefaultBitcoinImage, constants.DefaultLightningImage}, cfg.SimulatedImages)
}

func TestFlagsAndEnv(t *testing.T) {
	require := require.New(t)
	t.Setenv("LNR_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("LNR_PORT", ":9000")

	cfg := parse(t,
		"--port", ":9999",
		"--in-memory",
		"--driver", "local",
		"--ready-timeout", "5s",
		"--executables", "cln:23=/usr/bin/lightningd",
	)
	// flags win over env vars
	require.Equal(":9999", cfg.Port)
	require.Equal("nats://127.0.0.1:4222", cfg.NatsURL)
	require.Empty(cfg.DBPath)
	require.Equal(server.DriverLocal, cfg.Driver)
	require.Equal(5*time.Second, cfg.ReadyTimeout)
	require.Equal("/usr/bin/lightningd", cfg.Executables["cln:23"])
}

func TestConfigFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "lnr.yaml")
	require.NoError(os.WriteFile(path, []byte("driver: local\nmax-concurrency: 3\n"), 0o600))

	cfg := parse(t, "--config", path)
	require.Equal(server.DriverLocal, cfg.Driver)
	require.Equal(3, cfg.MaxConcurrency)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addFlags(fs)
	require.NoError(fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	_, err := buildViper(fs)
	require.Error(err)
}
