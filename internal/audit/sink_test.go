package audit

import (
	"context"
	"log/slog"
	"testing"

	"github.com/urbanketl/vendcore/internal/core/domain"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := Open(t.TempDir(), WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestRecordRecent(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	outcomes := []string{
		domain.AttemptOutcomeVerified,
		domain.AttemptOutcomeMismatch,
		domain.AttemptOutcomeMalformed,
	}
	for _, outcome := range outcomes {
		err := sink.Record(ctx, domain.AuthAttempt{
			SessionID: "uksn-test",
			CardUID:   "04AABBCCDD22EE",
			MachineID: "machine-1",
			Outcome:   outcome,
		})
		if err != nil {
			t.Fatalf("Record(%s) error = %v", outcome, err)
		}
	}

	attempts, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("len(Recent) = %d, want 3", len(attempts))
	}

	// Newest first.
	if attempts[0].Outcome != domain.AttemptOutcomeMalformed {
		t.Errorf("attempts[0].Outcome = %q, want malformed", attempts[0].Outcome)
	}
	for _, a := range attempts {
		if a.ID == "" || a.CreatedAt == 0 {
			t.Errorf("record missing assigned fields: %+v", a)
		}
	}
}

func TestRecent_Limit(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := sink.Record(ctx, domain.AuthAttempt{
			CardUID: "04AABBCCDD22EE",
			Outcome: domain.AttemptOutcomeVerified,
		}); err != nil {
			t.Fatal(err)
		}
	}

	attempts, err := sink.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 2 {
		t.Errorf("len(Recent) = %d, want 2", len(attempts))
	}
}

func TestRecent_Empty(t *testing.T) {
	sink := newTestSink(t)
	attempts, err := sink.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("len(Recent) = %d, want 0", len(attempts))
	}
}
