package metric

import (
	"bytes"
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/internal/storage/memory"
)

func findFamily(t *testing.T, r *Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestObserveOutcome(t *testing.T) {
	r := NewRegistry()
	r.ObserveOutcome(domain.AttemptOutcomeVerified)
	r.ObserveOutcome(domain.AttemptOutcomeVerified)
	r.ObserveOutcome(domain.AttemptOutcomeMismatch)

	f := findFamily(t, r, "vendcore_auth_handshake_outcomes_total")
	if f == nil {
		t.Fatal("outcome family not found")
	}

	counts := make(map[string]float64)
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "outcome" {
				counts[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if counts["verified"] != 2 || counts["mismatch"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestObserveDispense(t *testing.T) {
	r := NewRegistry()
	r.ObserveDispense(true, 750)
	r.ObserveDispense(true, 250)
	r.ObserveDispense(false, 600)

	paise := findFamily(t, r, "vendcore_ledger_dispensed_paise_total")
	if paise == nil {
		t.Fatal("paise family not found")
	}
	if got := paise.GetMetric()[0].GetCounter().GetValue(); got != 1000 {
		t.Errorf("dispensed paise = %v, want 1000", got)
	}
}

func TestSessionCollector(t *testing.T) {
	store := memory.New()
	sess, err := domain.NewAuthSession("04AABBCCDD22EE", "m", 0, 1, bytes.Repeat([]byte{1}, 16))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	r.MustRegister(NewSessionCollector(store.Stats))

	f := findFamily(t, r, "vendcore_sessions_live")
	if f == nil {
		t.Fatal("sessions family not found")
	}
	if len(f.GetMetric()) != 1 {
		t.Fatalf("metric count = %d, want 1", len(f.GetMetric()))
	}
	m := f.GetMetric()[0]
	if m.GetGauge().GetValue() != 1 {
		t.Errorf("gauge = %v, want 1", m.GetGauge().GetValue())
	}
	if m.GetLabel()[0].GetValue() != string(domain.AuthStateStarted) {
		t.Errorf("state label = %v", m.GetLabel()[0].GetValue())
	}
}

func TestHandler(t *testing.T) {
	if NewRegistry().Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}
