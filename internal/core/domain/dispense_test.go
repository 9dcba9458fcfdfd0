package domain

import (
	"strings"
	"testing"
)

func TestGenerateDispenseID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := GenerateDispenseID()
		if err != nil {
			t.Fatalf("GenerateDispenseID() error = %v", err)
		}
		if !strings.HasPrefix(id, DispenseIDPrefix) {
			t.Errorf("ID %q should have prefix %q", id, DispenseIDPrefix)
		}
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}
