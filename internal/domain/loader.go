package domain

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Parse decodes one YAML domain definition.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse domain config: %w", err)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return Config{}, fmt.Errorf("parse domain config: name is required")
	}
	return cfg, nil
}

// LoadBuiltin returns the embedded domains sorted by file name.
func LoadBuiltin() ([]Config, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, err
	}
	var out []Config
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := builtinFS.ReadFile("builtin/" + e.Name())
		if err != nil {
			return nil, err
		}
		cfg, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadDir reads every *.yaml / *.yml file in dir.
func LoadDir(dir string) ([]Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read domains dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	out := make([]Config, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		cfg, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// NewDefaultRegistry registers the builtin domains followed by any in extraDir.
func NewDefaultRegistry(extraDir string) (*Registry, error) {
	reg := NewRegistry()
	cfgs, err := LoadBuiltin()
	if err != nil {
		return nil, err
	}
	if extraDir != "" {
		extra, err := LoadDir(extraDir)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, extra...)
	}
	for _, cfg := range cfgs {
		if err := reg.Register(cfg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
