package toolcache

import "time"

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// DefaultTTLs lists the tools whose results may be cached. Tools absent from
// the table are never cached.
var DefaultTTLs = map[string]time.Duration{
	"search_literature":       day,
	"search_citations":        day,
	"search_clinical_trials":  day,
	"search_bioactivity":      week,
	"search_compounds":        week,
	"fetch_compound":          week,
	"search_protein_targets":  week,
	"fetch_protein_structure": week,
	"fetch_indicator":         week,
	"compute_descriptors":     NoExpiry,
	"compute_fingerprint":     NoExpiry,
	"validate_smiles":         NoExpiry,
	"compute_similarity":      NoExpiry,
}

// TTLTable resolves the TTL for a tool name.
type TTLTable struct {
	ttls map[string]time.Duration
}

// NewTTLTable copies DefaultTTLs and applies overrides. An override <= 0
// marks the tool as never expiring.
func NewTTLTable(overrides map[string]time.Duration) TTLTable {
	ttls := make(map[string]time.Duration, len(DefaultTTLs)+len(overrides))
	for k, v := range DefaultTTLs {
		ttls[k] = v
	}
	for k, v := range overrides {
		if v <= 0 {
			v = NoExpiry
		}
		ttls[k] = v
	}
	return TTLTable{ttls: ttls}
}

// TTL returns the tool's TTL and whether it is cacheable at all.
func (t TTLTable) TTL(tool string) (time.Duration, bool) {
	ttl, ok := t.ttls[tool]
	return ttl, ok
}
