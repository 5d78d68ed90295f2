package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRecordAttempt(t *testing.T) {
	mock := newMockPool(t)
	store := NewAuditStore(mock)
	clientID := uuid.New()
	convID := uuid.New()

	mock.ExpectExec("INSERT INTO webhook_attempts").
		WithArgs(clientID, convID, "https://crm.example.com/leads").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.RecordAttempt(context.Background(), clientID, convID, "https://crm.example.com/leads"); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
}

func TestRecordSuccess(t *testing.T) {
	mock := newMockPool(t)
	store := NewAuditStore(mock)
	clientID := uuid.New()
	convID := uuid.New()

	mock.ExpectExec("INSERT INTO webhook_successes").
		WithArgs(clientID, convID, 200).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.RecordSuccess(context.Background(), clientID, convID, 200); err != nil {
		t.Fatalf("record success: %v", err)
	}
}

func TestRecordFailure(t *testing.T) {
	mock := newMockPool(t)
	store := NewAuditStore(mock)
	clientID := uuid.New()
	convID := uuid.New()

	mock.ExpectExec("INSERT INTO webhook_failures").
		WithArgs(clientID, convID, 503, "unexpected status 503").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.RecordFailure(context.Background(), clientID, convID, 503, "unexpected status 503"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
}

func TestListByClient(t *testing.T) {
	mock := newMockPool(t)
	store := NewAuditStore(mock)
	clientID := uuid.New()
	convID := uuid.New()
	now := time.Now()
	status := 200
	reason := "connection refused"

	mock.ExpectQuery("SELECT kind, conversation_id, status_code, reason, created_at").
		WithArgs(clientID).
		WillReturnRows(pgxmock.NewRows([]string{"kind", "conversation_id", "status_code", "reason", "created_at"}).
			AddRow("success", convID, &status, (*string)(nil), now).
			AddRow("failure", convID, (*int)(nil), &reason, now.Add(-time.Minute)).
			AddRow("attempt", convID, (*int)(nil), (*string)(nil), now.Add(-2*time.Minute)))

	entries, err := store.ListByClient(context.Background(), clientID)
	if err != nil {
		t.Fatalf("list by client: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Kind != "success" || entries[0].StatusCode == nil || *entries[0].StatusCode != 200 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Reason == nil || *entries[1].Reason != "connection refused" {
		t.Fatalf("failure reason not decoded")
	}
}
