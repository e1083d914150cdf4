package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config describes the on-disk layout and pool sizing bufctl and any
// other embedder of the kernel needs at startup.
type Config struct {
	Pool struct {
		FrameCount int `mapstructure:"frame_count"`
		PageSize   int `mapstructure:"page_size"`
	} `mapstructure:"pool"`
	Storage struct {
		DataDir string `mapstructure:"data_dir"`
		DBFile  string `mapstructure:"db_file"`
	} `mapstructure:"storage"`
	Debug bool `mapstructure:"debug"`
}

// DefaultConfig returns sane defaults for a standalone bufctl session.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Pool.FrameCount = 16
	cfg.Pool.PageSize = 1024
	cfg.Storage.DataDir = "."
	cfg.Storage.DBFile = "bufkernel.db"
	return cfg
}

// LoadConfig reads a YAML config file at path and unmarshals it into a
// Config seeded with DefaultConfig's values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}
