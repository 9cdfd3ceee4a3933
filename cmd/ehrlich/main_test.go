package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ehrlich.yaml")
	if err := os.WriteFile(cfgPath, []byte("general:\n  log_level: info\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	root := rootCMD()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestAssayZPrime(t *testing.T) {
	out := run(t, "assay", "zprime", "--positive", "0.9,0.92,0.91", "--negative", "0.1,0.12,0.11")
	var res struct {
		ZPrime  *float64 `json:"z_prime"`
		Quality string   `json:"quality"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.ZPrime == nil || res.Quality != "excellent" {
		t.Fatalf("unexpected result %s", out)
	}

	out = run(t, "assay", "zprime", "--positive", "0.9")
	if !strings.Contains(out, "insufficient") {
		t.Fatalf("expected insufficient controls, got %s", out)
	}
}

func TestDomainsCommands(t *testing.T) {
	out := run(t, "domains", "list")
	for _, name := range []string{"molecular_science", "impact_evaluation", "sports_science"} {
		if !strings.Contains(out, name) {
			t.Fatalf("list missing %s: %s", name, out)
		}
	}
	if out := run(t, "domains", "show", "sports_science"); !strings.Contains(out, "name: sports_science") {
		t.Fatalf("unexpected show output %s", out)
	}
	if out := run(t, "domains", "detect", "training"); !strings.Contains(out, `"name": "sports_science"`) {
		t.Fatalf("unexpected detect output %s", out)
	}
}

func TestScheduleFromFile(t *testing.T) {
	inv := investigation.New("MurA")
	strong, _ := investigation.NewHypothesis("covalent inhibitors", "", nil, 0.9)
	weak, _ := investigation.NewHypothesis("allosteric pocket", "", nil, 0.2)
	tested, _ := investigation.NewHypothesis("already supported", "", nil, 0.8)
	tested.Status = investigation.HypothesisSupported
	inv.Hypotheses = []*investigation.Hypothesis{weak, tested, strong}

	path := filepath.Join(t.TempDir(), "inv.json")
	raw, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var plan schedulePlan
	if err := json.Unmarshal([]byte(run(t, "schedule", "--file", path)), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if !plan.Continue || len(plan.Next) != 2 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Next[0].Statement != "covalent inhibitors" || plan.Next[1].Statement != "allosteric pocket" {
		t.Fatalf("expected highest branch score first, got %+v", plan.Next)
	}
}
