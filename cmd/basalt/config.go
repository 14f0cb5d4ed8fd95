package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the basalt configuration file (~/.config/basalt/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	OperatorsDir string `yaml:"operators_dir"`

	// Bench defaults
	Warmup *int64 `yaml:"warmup"`
	Runs   *int64 `yaml:"runs"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "basalt", "config.yaml")
}

// applyOperatorConfig applies config file defaults to the shared operator
// flags when the corresponding CLI flag was not explicitly set.
func applyOperatorConfig(c *cli.Command, cfg Config) {
	if cfg.OperatorsDir != "" && !c.IsSet("operators-path") {
		operatorsPath = cfg.OperatorsDir
	}
}

// applyBenchConfig applies config file defaults to bench command variables.
func applyBenchConfig(c *cli.Command, cfg Config, warmup, runs *int64) {
	applyOperatorConfig(c, cfg)
	if cfg.Warmup != nil && !c.IsSet("warmup") {
		*warmup = *cfg.Warmup
	}
	if cfg.Runs != nil && !c.IsSet("runs") {
		*runs = *cfg.Runs
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyOperatorConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
