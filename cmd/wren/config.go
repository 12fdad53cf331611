package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFile is looked up in the working directory when -config is not given.
const ConfigFile = "wren.toml"

// Config is the CLI configuration. Flags override file values.
type Config struct {
	// Wasm is the Wren reactor to run on wazero. Empty uses the built-in
	// test engine.
	Wasm string `toml:"wasm"`

	// ModulePath lists directories searched for imported modules, after the
	// directory of the script being run.
	ModulePath []string `toml:"module-path"`

	Engine EngineConfig `toml:"engine"`
	Heap   HeapConfig   `toml:"heap"`

	Verbose bool `toml:"verbose"`
}

// EngineConfig configures the wazero engine.
type EngineConfig struct {
	MemoryLimitPages uint32 `toml:"memory-limit-pages"`
	CacheDir         string `toml:"cache-dir"`
}

// HeapConfig tunes the VM's garbage collector. Zero values keep the
// engine defaults.
type HeapConfig struct {
	Initial       uint64 `toml:"initial"`
	Min           uint64 `toml:"min"`
	GrowthPercent int    `toml:"growth-percent"`
}

// loadConfig reads the file at path. An empty path reads ConfigFile from the
// working directory if it exists. Relative paths in the file are resolved
// against the file's directory.
func loadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = ConfigFile
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	dir := filepath.Dir(path)
	cfg.Wasm = relativeTo(dir, cfg.Wasm)
	cfg.Engine.CacheDir = relativeTo(dir, cfg.Engine.CacheDir)
	for i, p := range cfg.ModulePath {
		cfg.ModulePath[i] = relativeTo(dir, p)
	}
	return &cfg, nil
}

func relativeTo(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
