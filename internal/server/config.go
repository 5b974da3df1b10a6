package server

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config are the tunable knobs for the TCP front-end and its worker pool.
// Bound from a config file and environment variables via viper; no CLI
// flags are bound here (cmd/blockvaultd overwrites Addr with its --addr flag).
type Config struct {
	Addr string `mapstructure:"addr"`

	MaxWorkers    int `mapstructure:"max_workers"`
	QueueCapacity int `mapstructure:"queue_capacity"`

	MaxLineBytes       int `mapstructure:"max_line_bytes"`
	MaxPayloadBytes    int `mapstructure:"max_payload_bytes"`
	MaxCommandsPerConn int `mapstructure:"max_commands_per_conn"`

	ClientReadTimeout time.Duration `mapstructure:"client_read_timeout"`
}

// LoadConfig reads blockvault server configuration from (in order of
// precedence) flags bound by the caller, environment variables prefixed
// BLOCKVAULT_, a config file named blockvault-config, and finally the
// defaults set below.
func LoadConfig(v *viper.Viper) (Config, error) {
	v.SetConfigName("blockvault-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.blockvault")
	v.AddConfigPath("/etc/blockvault")

	v.SetDefault("addr", ":12345")
	v.SetDefault("max_workers", 64)
	v.SetDefault("queue_capacity", 1024)
	v.SetDefault("max_line_bytes", 64*1024)
	v.SetDefault("max_payload_bytes", 65535) // decoded byte count, matches the volume's max file size
	v.SetDefault("max_commands_per_conn", 10_000)
	v.SetDefault("client_read_timeout", 60*time.Second)

	v.SetEnvPrefix("BLOCKVAULT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}
