package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	require.Equal(t, DefaultRegistry, cfg.Registry)
	require.Equal(t, "custody.events", cfg.NATSSubjectPrefix)
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, 3, cfg.SinkRetries)
	require.Equal(t, 200*time.Millisecond, cfg.SinkRetryBackoff)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custody.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc: http://file:8545\nlink-token: \"0x0000000000000000000000000000000000000005\"\nlog-level: warn\n"), 0o644))

	t.Setenv("CUSTODY_LOG_LEVEL", "debug")
	t.Setenv("CUSTODY_PG_DSN", "postgres://env")
	t.Setenv("CUSTODY_ACCOUNT", "0x2000000000000000000000000000000000000000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("pg-dsn", "", "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://flag:8545"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	require.Equal(t, "http://flag:8545", cfg.RPCURL)
	require.Equal(t, "postgres://env", cfg.PGDSN)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "0x0000000000000000000000000000000000000005", cfg.LinkToken)
	require.Equal(t, "0x2000000000000000000000000000000000000000", cfg.Account)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoadAuditDefaults(t *testing.T) {
	cfg, err := LoadAudit("", nil)
	require.NoError(t, err)

	require.Equal(t, uint64(2000), cfg.BatchSize)
	require.True(t, cfg.CheckpointEnabled)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	require.Equal(t, "./data/pool_activity.jsonl", cfg.Out)
}

func TestLoadEventsDefaults(t *testing.T) {
	cfg, err := LoadEvents("", nil)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.Limit)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	require.True(t, ts.IsZero())

	ts, err = ParseTimestamp("1700000000")
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), ts.Unix())

	ts, err = ParseTimestamp("2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts.UTC())

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0x0000000000000000000000000000000000000003 ")
	require.NoError(t, err)
	require.Equal(t, "0x0000000000000000000000000000000000000003", addr.Hex())

	_, err = ParseAddress("0x123")
	require.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("100000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "100000000000000000000", amount.String())

	amount, err = ParseAmount("0")
	require.NoError(t, err)
	require.Zero(t, amount.Sign())

	_, err = ParseAmount("-1")
	require.Error(t, err)
	_, err = ParseAmount("1.5")
	require.Error(t, err)
}
