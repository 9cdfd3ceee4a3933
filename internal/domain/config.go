// Package domain holds the discipline-specific configuration that
// parameterizes planner and researcher prompts and candidate display.
package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrEmptyRegistry = errors.New("domain registry is empty")
	ErrUnknownDomain = errors.New("unknown domain")
	ErrNoConfigs     = errors.New("no domain configs to merge")
)

// ScoreColumn describes one candidate score shown to the user. A value at or
// past GoodThreshold displays as good, at or past OKThreshold as acceptable;
// "past" follows HigherIsBetter.
type ScoreColumn struct {
	Key            string  `yaml:"key" json:"key"`
	Label          string  `yaml:"label" json:"label"`
	Format         string  `yaml:"format,omitempty" json:"format,omitempty"`
	HigherIsBetter bool    `yaml:"higher_is_better" json:"higher_is_better"`
	GoodThreshold  float64 `yaml:"good_threshold" json:"good_threshold"`
	OKThreshold    float64 `yaml:"ok_threshold" json:"ok_threshold"`
}

// Config is one registered discipline, or a synthetic merge of several.
type Config struct {
	Name                   string        `yaml:"name" json:"name"`
	DisplayName            string        `yaml:"display_name" json:"display_name"`
	Categories             []string      `yaml:"categories" json:"categories"`
	ToolTags               []string      `yaml:"tool_tags" json:"tool_tags"`
	IdentifierType         string        `yaml:"identifier_type" json:"identifier_type"`
	IdentifierLabel        string        `yaml:"identifier_label" json:"identifier_label"`
	CandidateLabel         string        `yaml:"candidate_label" json:"candidate_label"`
	ScoreColumns           []ScoreColumn `yaml:"score_columns" json:"score_columns"`
	AttributeKeys          []string      `yaml:"attribute_keys" json:"attribute_keys"`
	HypothesisTypes        []string      `yaml:"hypothesis_types" json:"hypothesis_types"`
	DirectorExamples       string        `yaml:"director_examples" json:"director_examples,omitempty"`
	ExperimentExamples     string        `yaml:"experiment_examples" json:"experiment_examples,omitempty"`
	ResearcherInstructions string        `yaml:"researcher_instructions" json:"researcher_instructions,omitempty"`

	sources []Config
}

// HasToolTag reports whether tag is enabled for this domain.
func (c Config) HasToolTag(tag string) bool {
	for _, t := range c.ToolTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Sources returns the configs a merged config was built from, or c itself.
func (c Config) Sources() []Config {
	if len(c.sources) == 0 {
		return []Config{c}
	}
	out := make([]Config, len(c.sources))
	copy(out, c.sources)
	return out
}

// Merged reports whether c was produced by Merge from several configs.
func (c Config) Merged() bool { return len(c.sources) > 1 }

// Merge combines configs for an investigation spanning several disciplines.
// Configs repeating an earlier name are ignored; a single distinct config is
// returned unchanged.
func Merge(configs ...Config) (Config, error) {
	configs = distinct(configs)
	switch len(configs) {
	case 0:
		return Config{}, ErrNoConfigs
	case 1:
		return configs[0], nil
	}

	sorted := make([]Config, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	names := make([]string, 0, len(sorted))
	displays := make([]string, 0, len(sorted))
	var (
		categories, tags, attrs, htypes []string
		columns                         []ScoreColumn
		dirEx, expEx, instr             []string
	)
	seenCol := map[string]bool{}
	for _, c := range sorted {
		names = append(names, c.Name)
		display := c.DisplayName
		if display == "" {
			display = c.Name
		}
		displays = append(displays, display)
		categories = appendUnique(categories, c.Categories...)
		tags = appendUnique(tags, c.ToolTags...)
		attrs = appendUnique(attrs, c.AttributeKeys...)
		htypes = appendUnique(htypes, c.HypothesisTypes...)
		for _, col := range c.ScoreColumns {
			if !seenCol[col.Key] {
				seenCol[col.Key] = true
				columns = append(columns, col)
			}
		}
		dirEx = appendBlock(dirEx, c.DirectorExamples)
		expEx = appendBlock(expEx, c.ExperimentExamples)
		instr = appendBlock(instr, c.ResearcherInstructions)
	}

	first := sorted[0]
	return Config{
		Name:                   strings.Join(names, " + "),
		DisplayName:            strings.Join(displays, " + "),
		Categories:             categories,
		ToolTags:               tags,
		IdentifierType:         first.IdentifierType,
		IdentifierLabel:        first.IdentifierLabel,
		CandidateLabel:         first.CandidateLabel,
		ScoreColumns:           columns,
		AttributeKeys:          attrs,
		HypothesisTypes:        htypes,
		DirectorExamples:       strings.Join(dirEx, "\n\n"),
		ExperimentExamples:     strings.Join(expEx, "\n\n"),
		ResearcherInstructions: strings.Join(instr, "\n\n"),
		sources:                sorted,
	}, nil
}

func distinct(configs []Config) []Config {
	seen := make(map[string]bool, len(configs))
	out := make([]Config, 0, len(configs))
	for _, c := range configs {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range dst {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, item)
		}
	}
	return dst
}

func appendBlock(dst []string, block string) []string {
	if block = strings.TrimSpace(block); block != "" {
		dst = append(dst, block)
	}
	return dst
}
