package budget

import "fmt"

// Config defines optional guardrails for one investigation. Nil fields are unlimited.
type Config struct {
	MaxCost        *float64
	MaxTokens      *int64
	MaxTimeSeconds *int64
}

// Limits builds a Config from plain values where zero means unlimited.
func Limits(maxCost float64, maxTokens, maxTimeSeconds int64) Config {
	var cfg Config
	if maxCost != 0 {
		cfg.MaxCost = &maxCost
	}
	if maxTokens != 0 {
		cfg.MaxTokens = &maxTokens
	}
	if maxTimeSeconds != 0 {
		cfg.MaxTimeSeconds = &maxTimeSeconds
	}
	return cfg
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	for name, negative := range map[string]bool{
		KindCost:   c.MaxCost != nil && *c.MaxCost < 0,
		KindTokens: c.MaxTokens != nil && *c.MaxTokens < 0,
		KindTime:   c.MaxTimeSeconds != nil && *c.MaxTimeSeconds < 0,
	} {
		if negative {
			return fmt.Errorf("%s limit cannot be negative", name)
		}
	}
	return nil
}

// IsZero reports whether no limit is set.
func (c Config) IsZero() bool {
	return (c.MaxCost == nil || *c.MaxCost == 0) &&
		(c.MaxTokens == nil || *c.MaxTokens == 0) &&
		(c.MaxTimeSeconds == nil || *c.MaxTimeSeconds == 0)
}
