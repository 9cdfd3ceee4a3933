// Package findings searches findings recorded by earlier investigations.
package findings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/blevesearch/bleve"
)

// DefaultLimit is used when a search asks for zero or fewer results.
const DefaultLimit = 10

// Searcher is the persistence-side contract behind search_prior_findings.
type Searcher interface {
	SearchFindings(ctx context.Context, query string, limit int) ([]investigation.FindingRecord, error)
}

type document struct {
	InvestigationID string `json:"investigation_id"`
	HypothesisID    string `json:"hypothesis_id"`
	Title           string `json:"title"`
	Detail          string `json:"detail"`
	EvidenceType    string `json:"evidence_type"`
	Source          string `json:"source"`
}

// Index is an in-memory full-text index over findings.
type Index struct {
	bleve bleve.Index
	mu    sync.RWMutex
	meta  map[string]investigation.FindingRecord
}

// NewIndex creates an empty memory-only index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create findings index: %w", err)
	}
	return &Index{bleve: idx, meta: make(map[string]investigation.FindingRecord)}, nil
}

// Add indexes f under its investigation. Re-adding the same finding id replaces it.
func (x *Index) Add(investigationID string, f investigation.Finding) error {
	if f.ID == "" {
		return fmt.Errorf("finding id is required")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.meta[f.ID] = investigation.FindingRecord{InvestigationID: investigationID, Finding: f}
	return x.bleve.Index(f.ID, document{
		InvestigationID: investigationID,
		HypothesisID:    f.HypothesisID,
		Title:           f.Title,
		Detail:          f.Detail,
		EvidenceType:    string(f.EvidenceType),
		Source:          f.Source,
	})
}

// AddAll indexes every finding of inv.
func (x *Index) AddAll(inv *investigation.Investigation) error {
	for _, f := range inv.Findings {
		if err := x.Add(inv.ID, f); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of indexed findings.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.meta)
}

// SearchFindings runs query as a query-string query, falling back to a plain
// match query when the text does not parse.
func (x *Index) SearchFindings(ctx context.Context, query string, limit int) ([]investigation.FindingRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	res, err := x.bleve.SearchInContext(ctx, req)
	if err != nil {
		req = bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
		if res, err = x.bleve.SearchInContext(ctx, req); err != nil {
			return nil, fmt.Errorf("search findings: %w", err)
		}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]investigation.FindingRecord, 0, len(res.Hits))
	for _, hit := range res.Hits {
		rec, ok := x.meta[hit.ID]
		if !ok {
			continue
		}
		rec.Score = hit.Score
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the underlying index.
func (x *Index) Close() error {
	return x.bleve.Close()
}
