package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AuditConfig holds configuration for the pool activity audit.
type AuditConfig struct {
	RPCURL            string
	Registry          string
	Account           string
	PrivateKey        string
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// LoadAudit merges config file, environment variables, and flags into AuditConfig.
func LoadAudit(cfgFile string, flags *pflag.FlagSet) (AuditConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("registry", DefaultRegistry)
		v.SetDefault("batch-size", uint64(2000))
		v.SetDefault("out", "./data/pool_activity.jsonl")
		v.SetDefault("checkpoint", "./data/audit_checkpoint.json")
		v.SetDefault("checkpoint-enabled", true)
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
	})
	if err != nil {
		return AuditConfig{}, err
	}

	cfg := AuditConfig{
		RPCURL:            v.GetString("rpc"),
		Registry:          v.GetString("registry"),
		Account:           v.GetString("account"),
		PrivateKey:        v.GetString("private-key"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}
