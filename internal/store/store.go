// Package store persists investigations, their findings and their event
// log in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sequela02/ehrlich-sub001/config"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/telemetry"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNotFound indicates no investigation exists with the requested id.
	ErrNotFound = errors.New("investigation not found")
	// ErrExists indicates SaveInvestigation was called for a stored id.
	ErrExists = errors.New("investigation already exists")
)

const uniqueViolation = "23505"

type Store struct {
	DB *sql.DB
}

// EventRecord is one persisted wire event.
type EventRecord struct {
	Seq             int64
	InvestigationID string
	Event           events.WireEvent
	CreatedAt       time.Time
}

// Open connects using the postgres section of the config.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

const insertInvestigationSQL = `
INSERT INTO investigations (id, prompt, status, domain, document, error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`

// SaveInvestigation inserts a new investigation.
func (s *Store) SaveInvestigation(ctx context.Context, inv *investigation.Investigation) error {
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode investigation: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, insertInvestigationSQL, inv.ID, inv.Prompt, string(inv.Status), inv.Domain, doc, inv.Error, inv.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrExists, inv.ID)
	}
	return err
}

const selectInvestigationSQL = `SELECT document FROM investigations WHERE id=$1`

// GetInvestigation loads the stored document for id.
func (s *Store) GetInvestigation(ctx context.Context, id string) (*investigation.Investigation, error) {
	var doc []byte
	err := s.DB.QueryRowContext(ctx, selectInvestigationSQL, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var inv investigation.Investigation
	if err := json.Unmarshal(doc, &inv); err != nil {
		return nil, fmt.Errorf("decode investigation %s: %w", id, err)
	}
	return &inv, nil
}

const upsertInvestigationSQL = `
INSERT INTO investigations (id, prompt, status, domain, document, error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  domain = EXCLUDED.domain,
  document = EXCLUDED.document,
  error = EXCLUDED.error,
  updated_at = NOW()`

const upsertFindingSQL = `
INSERT INTO findings (id, investigation_id, hypothesis_id, experiment_id, title, detail, evidence_type, source, citation, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING`

// UpdateInvestigation writes the document and status and inserts any new
// findings, in one transaction.
func (s *Store) UpdateInvestigation(ctx context.Context, inv *investigation.Investigation) (err error) {
	ctx, span := telemetry.Tracer("store").Start(ctx, "store.update_investigation")
	span.SetAttributes(attribute.String("investigation_id", inv.ID), attribute.Int("findings", len(inv.Findings)))
	defer span.End()

	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode investigation: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			span.RecordError(err)
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertInvestigationSQL, inv.ID, inv.Prompt, string(inv.Status), inv.Domain, doc, inv.Error, inv.CreatedAt); err != nil {
		return fmt.Errorf("upsert investigation: %w", err)
	}
	if len(inv.Findings) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertFindingSQL)
		if err != nil {
			return fmt.Errorf("prepare findings: %w", err)
		}
		defer stmt.Close()
		for _, f := range inv.Findings {
			if _, err = stmt.ExecContext(ctx, f.ID, inv.ID, f.HypothesisID, nullable(f.ExperimentID), f.Title, f.Detail,
				string(f.EvidenceType), f.Source, f.Citation, f.CreatedAt); err != nil {
				return fmt.Errorf("insert finding %s: %w", f.ID, err)
			}
		}
	}
	return tx.Commit()
}

const searchFindingsSQL = `
SELECT f.investigation_id, f.id, f.hypothesis_id, COALESCE(f.experiment_id, ''), f.title, f.detail,
       f.evidence_type, f.source, f.citation, f.created_at, ts_rank(f.search, q) AS rank
FROM findings f, plainto_tsquery('english', $1) q
WHERE f.search @@ q
ORDER BY rank DESC, f.created_at DESC
LIMIT $2`

// SearchFindings ranks findings from every investigation against query.
func (s *Store) SearchFindings(ctx context.Context, query string, limit int) ([]investigation.FindingRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, searchFindingsSQL, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []investigation.FindingRecord
	for rows.Next() {
		var (
			rec      investigation.FindingRecord
			evidence string
		)
		f := &rec.Finding
		if err := rows.Scan(&rec.InvestigationID, &f.ID, &f.HypothesisID, &f.ExperimentID, &f.Title, &f.Detail,
			&evidence, &f.Source, &f.Citation, &f.CreatedAt, &rec.Score); err != nil {
			return nil, err
		}
		f.EvidenceType = investigation.EvidenceType(evidence)
		out = append(out, rec)
	}
	return out, rows.Err()
}

const insertEventSQL = `INSERT INTO investigation_events (investigation_id, event, data, created_at) VALUES ($1,$2,$3,NOW())`

// AppendEvent adds ev to the investigation's event log.
func (s *Store) AppendEvent(ctx context.Context, investigationID string, ev events.WireEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, insertEventSQL, investigationID, ev.Event, data)
	return err
}

// Publish makes Store an events.Sink.
func (s *Store) Publish(ctx context.Context, investigationID string, ev events.WireEvent) error {
	return s.AppendEvent(ctx, investigationID, ev)
}

const listEventsSQL = `
SELECT seq, event, data, created_at
FROM investigation_events
WHERE investigation_id=$1 AND seq > $2
ORDER BY seq
LIMIT $3`

// ListEvents returns events after seq in append order, for replaying a stream.
func (s *Store) ListEvents(ctx context.Context, investigationID string, afterSeq int64, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.DB.QueryContext(ctx, listEventsSQL, investigationID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventRecord
	for rows.Next() {
		rec := EventRecord{InvestigationID: investigationID}
		var data []byte
		if err := rows.Scan(&rec.Seq, &rec.Event.Event, &data, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Event.Data); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", rec.Seq, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ events.Sink = (*Store)(nil)
