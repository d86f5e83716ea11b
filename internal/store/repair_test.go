package store

import (
	"errors"
	"os"
	"testing"
)

// TestRepair tests restoring a quarantined document.
func TestRepair(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	broken := `[{"id": "BRK", "name": "Warren Buffett", "firm": "Berkshire Hathaway",}`
	if err := os.WriteFile(s.Path(ManagersFile), []byte(broken), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadManagers(); !errors.Is(err, ErrCorruptCache) {
		t.Fatalf("expected ErrCorruptCache, got %v", err)
	}

	quarantined, err := s.Quarantined()
	if err != nil {
		t.Fatal(err)
	}
	if len(quarantined) != 1 {
		t.Fatalf("expected one quarantined file, got %v", quarantined)
	}

	res, err := s.Repair(quarantined[0])
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if !res.Changed || res.Restored != ManagersFile {
		t.Errorf("unexpected result: %+v", res)
	}

	managers, err := s.LoadManagers()
	if err != nil {
		t.Fatal(err)
	}
	if len(managers) != 1 || managers[0].ID != "BRK" {
		t.Errorf("unexpected managers after repair: %+v", managers)
	}
	if left, _ := s.Quarantined(); len(left) != 0 {
		t.Errorf("expected quarantined source to be removed, got %v", left)
	}
}

// TestRepair_Rejects tests sources that cannot be repaired.
func TestRepair_Rejects(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	if _, err := s.Repair("../outside.json"); !errors.Is(err, ErrRepairFailed) {
		t.Errorf("expected ErrRepairFailed for path outside store, got %v", err)
	}

	if err := os.WriteFile(s.Path(HoldingsFile), []byte(`{"not": "a list"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Repair(HoldingsFile); !errors.Is(err, ErrRepairFailed) {
		t.Errorf("expected ErrRepairFailed for wrong shape, got %v", err)
	}
}
