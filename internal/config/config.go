package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultRegistry is the PoolAddressesProvider the service was first deployed against.
const DefaultRegistry = "0xc4dCB5126a3AfEd129BC3668Ea19285A9f56D15D"

// Config holds custody service settings loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	Registry          string
	PrivateKey        string
	Account           string
	Owner             string
	Caller            string
	LinkToken         string
	EventsOut         string
	PGDSN             string
	NATSURL           string
	NATSSubjectPrefix string
	Listen            string
	SinkRetries       int
	SinkRetryBackoff  time.Duration
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("registry", DefaultRegistry)
		v.SetDefault("nats-subject-prefix", "custody.events")
		v.SetDefault("listen", ":8080")
		v.SetDefault("sink-retries", 3)
		v.SetDefault("sink-retry-backoff", 200*time.Millisecond)
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		Registry:          v.GetString("registry"),
		PrivateKey:        v.GetString("private-key"),
		Account:           v.GetString("account"),
		Owner:             v.GetString("owner"),
		Caller:            v.GetString("caller"),
		LinkToken:         v.GetString("link-token"),
		EventsOut:         v.GetString("events-out"),
		PGDSN:             v.GetString("pg-dsn"),
		NATSURL:           v.GetString("nats-url"),
		NATSSubjectPrefix: v.GetString("nats-subject-prefix"),
		Listen:            v.GetString("listen"),
		SinkRetries:       v.GetInt("sink-retries"),
		SinkRetryBackoff:  v.GetDuration("sink-retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// newViper layers defaults < config file < env (CUSTODY_*) < flags.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("CUSTODY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}
