// Package mlfqconfig loads the scheduler's tunable constants (spec.md §6,
// "Build-time configuration") from file and environment, with the spec's
// defaults as a fallback when neither is set. The original firmware baked
// these in as #define constants; here they're adjustable without a
// recompile, read through viper the way a long-running Go service would.
package mlfqconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"

	"github.com/feedbackqueue/mlfq/mlfq"
)

// Config mirrors mlfq.LevelConfig plus the deployment-level knobs the
// scheduler's Init calls take (table size, channel depth, boost period).
type Config struct {
	MaxTasks         int
	ExpiryChannelLen int
	BoostPeriod      time.Duration
	Levels           mlfq.LevelConfig
}

// Default returns the spec's built-in constants (spec.md §6's table),
// independent of any config source.
func Default() Config {
	return Config{
		MaxTasks:         mlfq.DefaultMaxTasks,
		ExpiryChannelLen: mlfq.DefaultExpiryChannelLen,
		BoostPeriod:      time.Duration(mlfq.DefaultBoostPeriodTicks) * time.Millisecond,
		Levels:           mlfq.DefaultLevelConfig(),
	}
}

// Load reads configuration from configPath (if non-empty) and from
// environment variables prefixed MLFQ_, falling back to Default for any key
// left unset. A missing configPath is not an error; a present-but-malformed
// file is.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MLFQ")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("max_tasks", def.MaxTasks)
	v.SetDefault("expiry_channel_len", def.ExpiryChannelLen)
	v.SetDefault("boost_period_ms", def.BoostPeriod.Milliseconds())
	v.SetDefault("top_priority", def.Levels.TopPriority)
	v.SetDefault("quantum_high", def.Levels.QuantumHigh)
	v.SetDefault("quantum_medium", def.Levels.QuantumMedium)
	v.SetDefault("quantum_low", def.Levels.QuantumLow)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("mlfqconfig: reading %s: %w", configPath, err)
			}
		}
	}

	cfg := Config{
		MaxTasks:         v.GetInt("max_tasks"),
		ExpiryChannelLen: v.GetInt("expiry_channel_len"),
		BoostPeriod:      time.Duration(v.GetInt64("boost_period_ms")) * time.Millisecond,
		Levels: mlfq.LevelConfig{
			TopPriority:   v.GetInt("top_priority"),
			QuantumHigh:   uint32(v.GetUint("quantum_high")),
			QuantumMedium: uint32(v.GetUint("quantum_medium")),
			QuantumLow:    uint32(v.GetUint("quantum_low")),
		},
	}

	if cfg.MaxTasks <= 0 || cfg.Levels.QuantumHigh == 0 || cfg.Levels.QuantumMedium == 0 || cfg.Levels.QuantumLow == 0 {
		return Config{}, fmt.Errorf("mlfqconfig: invalid configuration: %+v", cfg)
	}

	return cfg, nil
}

// BoostPeriodTicks converts BoostPeriod into the tick count the Supervisor's
// Init expects, assuming one tick per millisecond (the reference 1kHz tick
// rate) — matching the original's MLFQ_BOOST_PERIOD_MS / portTICK_PERIOD_MS
// conversion. simkernel.TickInterval is 2ms, so under simkernel a boost
// period of N ms spans 2N ms of wall-clock time.
func (c Config) BoostPeriodTicks() uint64 {
	return uint64(c.BoostPeriod.Milliseconds())
}
