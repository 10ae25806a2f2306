package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i5heu/autofuel/internal/testbench"
)

// Config is an alias for testbench.Config. This allows other programs to import
// the run configuration without pulling in the entire testbench package.
type Config = testbench.Config

// File is a bench plan: a base run configuration and the consumer counts to
// sweep over.
type File struct {
	Iterations int    `yaml:"iterations"`
	Consumers  []int  `yaml:"consumers"`
	Run        Config `yaml:"run"`
}

// Default returns the plan used when no file is given.
func Default() File {
	return File{
		Iterations: 3,
		Consumers:  []int{1, 2, 4, 8, 16},
		Run: Config{
			PoolSize: 64,
			NumItems: 100000,
			MaxBatch: 64,
		},
	}
}

// Load reads a YAML plan from path. Fields missing from the file keep their
// Default values.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("config %q: %w", path, err)
	}
	return f, nil
}

// Validate checks the plan for values the bench cannot run with.
func (f File) Validate() error {
	if f.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", f.Iterations)
	}
	if len(f.Consumers) == 0 {
		return fmt.Errorf("no consumer counts given")
	}
	for _, c := range f.Consumers {
		if c < 1 {
			return fmt.Errorf("consumer count must be at least 1, got %d", c)
		}
	}
	if f.Run.PoolSize < 0 {
		return fmt.Errorf("pool_size must not be negative, got %d", f.Run.PoolSize)
	}
	if f.Run.NumItems < 0 {
		return fmt.Errorf("items must not be negative, got %d", f.Run.NumItems)
	}
	return nil
}
