package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps classified categories to domain configs. It is constructed
// explicitly and passed to the components that need it.
type Registry struct {
	mu         sync.RWMutex
	configs    map[string]Config
	order      []string
	categories map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		configs:    make(map[string]Config),
		categories: make(map[string]string),
	}
}

// Register adds cfg, replacing any config with the same name.
func (r *Registry) Register(cfg Config) error {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return fmt.Errorf("domain config name is required")
	}
	cfg.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[name]; !exists {
		r.order = append(r.order, name)
	}
	r.configs[name] = cfg
	for _, cat := range cfg.Categories {
		key := normalizeCategory(cat)
		if key == "" {
			continue
		}
		if _, taken := r.categories[key]; !taken {
			r.categories[key] = name
		}
	}
	return nil
}

// Get returns the config registered under name.
func (r *Registry) Get(name string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}
	return cfg, nil
}

// All returns configs in registration order.
func (r *Registry) All() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.configs[name])
	}
	return out
}

// Names returns registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Detect maps a classified category to its config, falling back to the first
// registered config.
func (r *Registry) Detect(category string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return Config{}, ErrEmptyRegistry
	}
	if name, ok := r.categories[normalizeCategory(category)]; ok {
		return r.configs[name], nil
	}
	return r.configs[r.order[0]], nil
}

// DetectMany detects each category, drops duplicates, and merges the result.
func (r *Registry) DetectMany(categories []string) (Config, error) {
	if len(categories) == 0 {
		return r.Detect("")
	}
	var picked []Config
	seen := map[string]bool{}
	for _, cat := range categories {
		cfg, err := r.Detect(cat)
		if err != nil {
			return Config{}, err
		}
		if seen[cfg.Name] {
			continue
		}
		seen[cfg.Name] = true
		picked = append(picked, cfg)
	}
	return Merge(picked...)
}

func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}
