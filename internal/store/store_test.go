package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/lib/pq"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestSaveInvestigation(t *testing.T) {
	st, mock := newMock(t)
	inv := investigation.New("find MurA inhibitors")
	inv.Domain = "molecular_science"

	mock.ExpectExec(regexp.QuoteMeta(insertInvestigationSQL)).
		WithArgs(inv.ID, inv.Prompt, "pending", "molecular_science", sqlmock.AnyArg(), "", inv.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.SaveInvestigation(context.Background(), inv); err != nil {
		t.Fatalf("SaveInvestigation: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(insertInvestigationSQL)).
		WillReturnError(&pq.Error{Code: uniqueViolation})
	if err := st.SaveInvestigation(context.Background(), inv); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetInvestigation(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectInvestigationSQL)).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).
			AddRow([]byte(`{"id":"inv-1","prompt":"p","status":"completed","hypotheses":[{"id":"h1","statement":"s","status":"supported","depth":0}]}`)))

	inv, err := st.GetInvestigation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("GetInvestigation: %v", err)
	}
	if inv.Status != investigation.StatusCompleted || len(inv.Hypotheses) != 1 || inv.Hypotheses[0].Status != investigation.HypothesisSupported {
		t.Fatalf("unexpected investigation %+v", inv)
	}

	mock.ExpectQuery(regexp.QuoteMeta(selectInvestigationSQL)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))
	if _, err := st.GetInvestigation(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateInvestigationWritesFindings(t *testing.T) {
	st, mock := newMock(t)
	inv := investigation.New("p")
	inv.Status = investigation.StatusRunning
	shared := investigation.NewShared(inv, nil)
	f1 := shared.AddFinding(investigation.Finding{HypothesisID: "h1", ExperimentID: "e1", Title: "binds", EvidenceType: investigation.EvidenceSupporting})
	f2 := shared.AddFinding(investigation.Finding{HypothesisID: "h1", Title: "no effect"})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertInvestigationSQL)).
		WithArgs(inv.ID, inv.Prompt, "running", "", sqlmock.AnyArg(), "", inv.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(upsertFindingSQL))
	prep.ExpectExec().
		WithArgs(f1.ID, inv.ID, "h1", "e1", "binds", "", "supporting", "", "", f1.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(f2.ID, inv.ID, "h1", nil, "no effect", "", "neutral", "", "", f2.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := st.UpdateInvestigation(context.Background(), inv); err != nil {
		t.Fatalf("UpdateInvestigation: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateInvestigationRollsBack(t *testing.T) {
	st, mock := newMock(t)
	inv := investigation.New("p")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertInvestigationSQL)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if err := st.UpdateInvestigation(context.Background(), inv); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchFindings(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(searchFindingsSQL)).
		WithArgs("MurA covalent", 10).
		WillReturnRows(sqlmock.NewRows([]string{"investigation_id", "id", "hypothesis_id", "experiment_id", "title", "detail", "evidence_type", "source", "citation", "created_at", "rank"}).
			AddRow("inv-1", "f1", "h1", "e1", "Covalent MurA binding", "Cys115", "supporting", "chembl", "", now, 0.42).
			AddRow("inv-2", "f2", "h9", "", "MurA assay", "", "neutral", "", "", now, 0.1))

	recs, err := st.SearchFindings(context.Background(), "MurA covalent", 0)
	if err != nil {
		t.Fatalf("SearchFindings: %v", err)
	}
	if len(recs) != 2 || recs[0].InvestigationID != "inv-1" || recs[0].Score != 0.42 {
		t.Fatalf("unexpected records %+v", recs)
	}
	if recs[0].Finding.EvidenceType != investigation.EvidenceSupporting {
		t.Fatalf("expected evidence type decoded, got %q", recs[0].Finding.EvidenceType)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendAndListEvents(t *testing.T) {
	st, mock := newMock(t)
	wire, ok := events.Translate(events.PhaseStarted{Phase: "synthesis", Description: "wrapping up"})
	if !ok {
		t.Fatalf("expected phase event to translate")
	}

	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs("inv-1", "phase_started", []byte(`{"description":"wrapping up","phase":"synthesis"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := st.Publish(context.Background(), "inv-1", wire); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(listEventsSQL)).
		WithArgs("inv-1", int64(0), 500).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "event", "data", "created_at"}).
			AddRow(int64(1), "phase_started", []byte(`{"phase":"synthesis"}`), now).
			AddRow(int64(2), "completed", []byte(`{"summary":"done"}`), now))
	recs, err := st.ListEvents(context.Background(), "inv-1", 0, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(recs) != 2 || recs[1].Seq != 2 || recs[1].Event.Event != "completed" || recs[1].Event.Data["summary"] != "done" {
		t.Fatalf("unexpected events %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
