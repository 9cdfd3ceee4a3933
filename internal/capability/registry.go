// Package capability is the registry of tools a researcher session may call.
package capability

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ToolCard is the registry metadata for one tool.
type ToolCard struct {
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	Description string                 `json:"description"`
	Tags        []string               `json:"tags"`
	InputSchema map[string]interface{} `json:"input_schema"`
	SideEffects []string               `json:"side_effects"`
	Checksum    string                 `json:"checksum"`
	Signature   string                 `json:"signature"`
}

// ToolFunc executes a tool with decoded arguments and returns its JSON/text result.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a card with its implementation.
type Tool struct {
	Card ToolCard
	Func ToolFunc
}

// ErrToolMissing indicates a required tool is not registered.
var ErrToolMissing = fmt.Errorf("required tool missing")

// Registry holds validated tools keyed by name.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]Tool
	signingSecret string
}

// NewRegistry returns an empty registry. When signingSecret is set, every
// registered card must carry a matching HMAC signature.
func NewRegistry(signingSecret string) *Registry {
	return &Registry{tools: make(map[string]Tool), signingSecret: signingSecret}
}

// Register validates and adds a tool. A newer version replaces an older one.
func (r *Registry) Register(tool Tool) error {
	if err := ValidateToolCard(tool.Card); err != nil {
		return err
	}
	if tool.Func == nil {
		return fmt.Errorf("tool %s has no implementation", tool.Card.Name)
	}
	if err := validateSignature(tool.Card, r.signingSecret); err != nil {
		return fmt.Errorf("tool %s@%s signature invalid: %w", tool.Card.Name, tool.Card.Version, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tools[tool.Card.Name]
	if !ok || !versionGreater(existing.Card.Version, tool.Card.Version) {
		r.tools[tool.Card.Name] = tool
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tool names, sorted.
func (r *Registry) List() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForTags returns the cards of tools sharing at least one tag with tags, sorted by name.
func (r *Registry) ForTags(tags []string) []ToolCard {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	var out []ToolCard
	for _, name := range r.List() {
		tool, _ := r.Get(name)
		for _, t := range tool.Card.Tags {
			if want[t] {
				out = append(out, tool.Card)
				break
			}
		}
	}
	return out
}

// Require returns ErrToolMissing for the first name not registered.
func (r *Registry) Require(names ...string) error {
	for _, n := range names {
		if _, ok := r.Get(n); !ok {
			return fmt.Errorf("%w: %s", ErrToolMissing, n)
		}
	}
	return nil
}

// ValidateToolCard checks the fields the dispatcher and prompts depend on.
func ValidateToolCard(tc ToolCard) error {
	if strings.TrimSpace(tc.Name) == "" {
		return fmt.Errorf("tool card name is required")
	}
	if strings.TrimSpace(tc.Version) == "" {
		return fmt.Errorf("tool %s: version is required", tc.Name)
	}
	if tc.InputSchema != nil {
		if typ, ok := tc.InputSchema["type"]; ok {
			if s, isString := typ.(string); !isString || s != "object" {
				return fmt.Errorf("tool %s: input schema type must be \"object\"", tc.Name)
			}
		}
	}
	return nil
}

// ComputeChecksum returns a deterministic hash of the ToolCard payload (excluding checksum and signature).
func ComputeChecksum(tc ToolCard) (string, error) {
	payload := map[string]interface{}{
		"name":         tc.Name,
		"version":      tc.Version,
		"description":  tc.Description,
		"tags":         tc.Tags,
		"input_schema": tc.InputSchema,
		"side_effects": tc.SideEffects,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum recomputes the checksum and compares it with tc.Checksum.
func VerifyChecksum(tc ToolCard) error {
	sum, err := ComputeChecksum(tc)
	if err != nil {
		return err
	}
	if sum != tc.Checksum {
		return fmt.Errorf("tool %s: checksum mismatch", tc.Name)
	}
	return nil
}

// SignToolCard computes an HMAC signature using the signing secret.
func SignToolCard(tc ToolCard, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum, err := ComputeChecksum(tc)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func validateSignature(tc ToolCard, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := SignToolCard(tc, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(tc.Signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func versionGreater(a, b string) bool {
	if a == b {
		return false
	}
	return compareVersions(splitVersion(a), splitVersion(b)) > 0
}

func splitVersion(v string) []int {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}

func compareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(a) {
			ai = a[i]
		}
		if i < len(b) {
			bi = b[i]
		}
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	return 0
}
