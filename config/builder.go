package config

import (
	"errors"
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/vitwit/xsettle/types"
	"github.com/vitwit/xsettle/utils"
)

type builder struct {
	configs []*Config
	err     error
}

func newBuilder() *builder {
	return &builder{configs: make([]*Config, 0, 3)}
}

// Load reads the environment, the optional file it names and the defaults.
func Load() (*Config, error) {
	return newBuilder().withEnv().withFile("").withDefaults().build()
}

// LoadFile is Load with an explicit file taking the place of XSETTLE_CONFIG.
func LoadFile(path string) (*Config, error) {
	return newBuilder().withEnv().withFile(path).withDefaults().build()
}

// build merges the layers; earlier layers win.
func (b *builder) build() (*Config, error) {
	if b.err != nil {
		return nil, types.Wrap(types.CodeConfigError, b.err, "error occured during building config")
	}

	cfg := new(Config)
	for _, layer := range b.configs {
		if err := mergo.Merge(cfg, layer); err != nil {
			return nil, types.Wrap(types.CodeConfigError, err, "error merging configs")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (b *builder) withEnv() *builder {
	envCfg := &Config{}
	if err := env.ParseWithOptions(envCfg, env.Options{Prefix: EnvPrefix}); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error getting env configs: %w", err))
		return b
	}
	b.configs = append(b.configs, envCfg)
	return b
}

// withFile adds path, or the file named by an earlier layer when path is
// empty. No file is not an error.
func (b *builder) withFile(path string) *builder {
	if path == "" {
		for _, cfg := range b.configs {
			if cfg.File != "" {
				path = cfg.File
			}
		}
	}
	if path == "" {
		return b
	}

	data, err := os.ReadFile(path)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error reading config file: %w", err))
		return b
	}

	fileCfg := &Config{}
	if err := utils.DecodeJSON(data, fileCfg); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error decoding config file %s: %w", path, err))
		return b
	}
	fileCfg.File = path
	b.configs = append(b.configs, fileCfg)
	return b
}

func (b *builder) withDefaults() *builder {
	b.configs = append(b.configs, Defaults())
	return b
}
