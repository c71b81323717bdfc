// Package engine ties the mutation subsystem to its external collaborators:
// the corpus, the target-engine executor, and the lifter. It owns the
// configuration, the per-mutator statistics, and the logging; the core
// packages below it stay silent.
package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/googleprojectzero/fuzzilli-sub008/mutator"
)

// Config is the explicit configuration threaded through the engine. There is
// no process-wide mutable state; every tunable lives here.
type Config struct {
	// Seed initializes the injected random source. Zero picks a
	// time-derived seed.
	Seed int64 `yaml:"seed"`

	// TimeoutMs bounds one execution of a program by the target engine, in
	// milliseconds. Runtime-assisted executions get twice this budget.
	TimeoutMs int `yaml:"timeoutMs"`

	// MaxSimultaneousMutations bounds how many instructions one mutation may
	// rewrite.
	MaxSimultaneousMutations int `yaml:"maxSimultaneousMutations"`

	// CodeGenerationAmount is the number of instructions inserted per code
	// generation site.
	CodeGenerationAmount int `yaml:"codeGenerationAmount"`

	// MaxRuntimeAssistedInstrumentations bounds the instrumentation points
	// per runtime-assisted mutation.
	MaxRuntimeAssistedInstrumentations int `yaml:"maxRuntimeAssistedInstrumentations"`

	// MinCorpusProgramSize is the smallest program the engine hands to
	// mutators; a smaller corpus entry is replaced by a freshly generated
	// program, which is added to the corpus.
	MinCorpusProgramSize int `yaml:"minCorpusProgramSize"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	tunables := mutator.DefaultTunables()
	return Config{
		TimeoutMs:                          1000,
		MaxSimultaneousMutations:           tunables.MaxSimultaneousMutations,
		CodeGenerationAmount:               tunables.CodeGenerationAmount,
		MaxRuntimeAssistedInstrumentations: tunables.MaxRuntimeAssistedInstrumentations,
		MinCorpusProgramSize:               3,
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// timeout returns the execution deadline as a duration.
func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// tunables projects the configuration onto the mutator-facing knobs.
func (c Config) tunables() mutator.Tunables {
	return mutator.Tunables{
		MaxSimultaneousMutations:           c.MaxSimultaneousMutations,
		CodeGenerationAmount:               c.CodeGenerationAmount,
		MaxRuntimeAssistedInstrumentations: c.MaxRuntimeAssistedInstrumentations,
	}
}
