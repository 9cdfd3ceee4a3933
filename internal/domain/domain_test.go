package domain

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func molecular() Config {
	return Config{
		Name:               "molecular_science",
		Categories:         []string{"chemistry", "antimicrobial"},
		ToolTags:           []string{"chemistry", "literature", "bioactivity"},
		IdentifierType:     "smiles",
		AttributeKeys:      []string{"logp", "target"},
		HypothesisTypes:    []string{"mechanistic", "causal"},
		ScoreColumns:       []ScoreColumn{{Key: "prediction_score"}, {Key: "effect_size", Label: "Mol effect"}},
		DirectorExamples:   "mol example",
		ExperimentExamples: "",
	}
}

func sports() Config {
	return Config{
		Name:               "sports_science",
		Categories:         []string{"training"},
		ToolTags:           []string{"literature", "training"},
		IdentifierType:     "protocol",
		AttributeKeys:      []string{"population", "target"},
		HypothesisTypes:    []string{"causal", "dose_response"},
		ScoreColumns:       []ScoreColumn{{Key: "effect_size", Label: "Sports effect"}},
		DirectorExamples:   "sports example",
		ExperimentExamples: "sports experiment",
	}
}

func TestMergeSingleUnchanged(t *testing.T) {
	in := molecular()
	out, err := Merge(in)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if diff := cmp.Diff(in, out, cmp.AllowUnexported(Config{})); diff != "" {
		t.Fatalf("single merge changed config (-want +got):\n%s", diff)
	}
	if out.Merged() {
		t.Fatalf("single config should not report merged")
	}
}

func TestMergeEmpty(t *testing.T) {
	if _, err := Merge(); !errors.Is(err, ErrNoConfigs) {
		t.Fatalf("expected ErrNoConfigs, got %v", err)
	}
}

func TestMergeMultiple(t *testing.T) {
	// Input order must not matter; configs are processed in name order.
	out, err := Merge(sports(), molecular())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if out.Name != "molecular_science + sports_science" {
		t.Fatalf("unexpected name %q", out.Name)
	}

	wantTags := []string{"bioactivity", "chemistry", "literature", "training"}
	gotTags := append([]string(nil), out.ToolTags...)
	sort.Strings(gotTags)
	if diff := cmp.Diff(wantTags, gotTags); diff != "" {
		t.Fatalf("tool tags are not the union (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"logp", "target", "population"}, out.AttributeKeys); diff != "" {
		t.Fatalf("attribute keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"mechanistic", "causal", "dose_response"}, out.HypothesisTypes); diff != "" {
		t.Fatalf("hypothesis types (-want +got):\n%s", diff)
	}
	wantCols := []ScoreColumn{{Key: "prediction_score"}, {Key: "effect_size", Label: "Mol effect"}}
	if diff := cmp.Diff(wantCols, out.ScoreColumns); diff != "" {
		t.Fatalf("score columns (-want +got):\n%s", diff)
	}
	if out.DirectorExamples != "mol example\n\nsports example" {
		t.Fatalf("unexpected director examples %q", out.DirectorExamples)
	}
	if out.ExperimentExamples != "sports experiment" {
		t.Fatalf("empty blocks should be skipped, got %q", out.ExperimentExamples)
	}
	if out.IdentifierType != "smiles" {
		t.Fatalf("expected identifier type from first config, got %q", out.IdentifierType)
	}

	sources := out.Sources()
	if len(sources) != 2 || sources[0].Name != "molecular_science" || sources[1].Name != "sports_science" {
		t.Fatalf("unexpected sources %+v", sources)
	}
	if !out.Merged() || !out.HasToolTag("training") || out.HasToolTag("causal") {
		t.Fatalf("unexpected merged tag lookup")
	}

	// Repeated inputs count once.
	dup, err := Merge(molecular(), sports(), molecular())
	if err != nil {
		t.Fatalf("Merge with repeat: %v", err)
	}
	if dup.Name != "molecular_science + sports_science" || len(dup.Sources()) != 2 {
		t.Fatalf("expected repeats collapsed, got %q with %d sources", dup.Name, len(dup.Sources()))
	}
	if diff := cmp.Diff(out.ToolTags, dup.ToolTags); diff != "" {
		t.Fatalf("tool tags changed by repeat (-want +got):\n%s", diff)
	}
	same, err := Merge(sports(), sports())
	if err != nil || same.Name != "sports_science" || same.Merged() {
		t.Fatalf("expected a single distinct config unchanged, got %q merged=%v (%v)", same.Name, same.Merged(), err)
	}
}

func TestMergeKeepsFirstSeenThresholds(t *testing.T) {
	mol := molecular()
	mol.ScoreColumns = []ScoreColumn{{Key: "effect_size", HigherIsBetter: true, GoodThreshold: 0.8, OKThreshold: 0.5}}
	sp := sports()
	sp.ScoreColumns = []ScoreColumn{{Key: "effect_size", HigherIsBetter: true, GoodThreshold: 0.3, OKThreshold: 0.1}}
	out, err := Merge(sp, mol)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(out.ScoreColumns) != 1 || out.ScoreColumns[0].GoodThreshold != 0.8 || out.ScoreColumns[0].OKThreshold != 0.5 {
		t.Fatalf("expected molecular thresholds kept, got %+v", out.ScoreColumns)
	}
}

func TestRegistryDetect(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Detect("chemistry"); !errors.Is(err, ErrEmptyRegistry) {
		t.Fatalf("expected ErrEmptyRegistry, got %v", err)
	}
	if err := reg.Register(molecular()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(sports()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	cfg, err := reg.Detect("  Training ")
	if err != nil || cfg.Name != "sports_science" {
		t.Fatalf("expected sports_science, got %q (%v)", cfg.Name, err)
	}
	cfg, err = reg.Detect("astronomy")
	if err != nil || cfg.Name != "molecular_science" {
		t.Fatalf("expected fallback to first registered, got %q (%v)", cfg.Name, err)
	}
	if _, err := reg.Get("nope"); !errors.Is(err, ErrUnknownDomain) {
		t.Fatalf("expected ErrUnknownDomain, got %v", err)
	}
	if err := reg.Register(Config{}); err == nil {
		t.Fatalf("expected error for nameless config")
	}
}

func TestRegistryDetectMany(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(molecular())
	_ = reg.Register(sports())

	cfg, err := reg.DetectMany([]string{"chemistry", "antimicrobial"})
	if err != nil {
		t.Fatalf("DetectMany: %v", err)
	}
	if cfg.Name != "molecular_science" || cfg.Merged() {
		t.Fatalf("expected duplicate detections collapsed, got %q", cfg.Name)
	}

	cfg, err = reg.DetectMany([]string{"training", "chemistry"})
	if err != nil {
		t.Fatalf("DetectMany: %v", err)
	}
	if cfg.Name != "molecular_science + sports_science" {
		t.Fatalf("unexpected merged name %q", cfg.Name)
	}
}

func TestLoadBuiltin(t *testing.T) {
	cfgs, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("LoadBuiltin: %v", err)
	}
	var names []string
	for _, c := range cfgs {
		names = append(names, c.Name)
		if len(c.ToolTags) == 0 || len(c.ScoreColumns) == 0 {
			t.Fatalf("builtin %s is missing tags or score columns", c.Name)
		}
		for _, col := range c.ScoreColumns {
			if col.GoodThreshold == col.OKThreshold {
				t.Fatalf("builtin %s column %s has no display thresholds", c.Name, col.Key)
			}
			if col.HigherIsBetter != (col.GoodThreshold > col.OKThreshold) {
				t.Fatalf("builtin %s column %s thresholds run against its direction: %+v", c.Name, col.Key, col)
			}
		}
	}
	want := []string{"molecular_science", "impact_evaluation", "sports_science"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("builtin names (-want +got):\n%s", diff)
	}
	dock := cfgs[0].ScoreColumns[1]
	if dock.Key != "docking_score" || dock.GoodThreshold != -8 || dock.OKThreshold != -6 {
		t.Fatalf("unexpected docking thresholds %+v", dock)
	}
}

func TestNewDefaultRegistryWithDir(t *testing.T) {
	dir := t.TempDir()
	doc := "name: astronomy\ncategories: [astrophysics]\ntool_tags: [literature, sky_survey]\n"
	if err := os.WriteFile(filepath.Join(dir, "astronomy.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := NewDefaultRegistry(dir)
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	cfg, err := reg.Detect("astrophysics")
	if err != nil || cfg.Name != "astronomy" {
		t.Fatalf("expected astronomy, got %q (%v)", cfg.Name, err)
	}
	if diff := cmp.Diff([]string{"astronomy", "impact_evaluation", "molecular_science", "sports_science"}, reg.Names(), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if first := reg.All()[0]; first.Name != "molecular_science" {
		t.Fatalf("expected molecular_science registered first, got %s", first.Name)
	}
}

func TestParseRequiresName(t *testing.T) {
	if _, err := Parse([]byte("categories: [x]\n")); err == nil {
		t.Fatalf("expected error for missing name")
	}
}
