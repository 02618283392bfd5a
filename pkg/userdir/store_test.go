package userdir

import (
	"path/filepath"
	"testing"

	"github.com/hbp4/hbp4/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestStore_SyncAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "userdir.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	entries := []Entry{
		{RadioID: 312000, Callsign: "W1AW", City: "Newington", State: "CT", Country: "USA"},
		{RadioID: 312001, Callsign: "K1ABC"},
	}
	if err := s.Sync(entries, 0); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	callsign, ok := s.Lookup(312000)
	if !ok || callsign != "W1AW" {
		t.Errorf("Lookup(312000) = (%q, %v), want (W1AW, true)", callsign, ok)
	}

	if _, ok := s.Lookup(999999); ok {
		t.Error("expected Lookup for unknown radio ID to report not found")
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestStore_SyncUpdatesExistingEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "userdir.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Sync([]Entry{{RadioID: 1, Callsign: "OLD"}}, 0); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := s.Sync([]Entry{{RadioID: 1, Callsign: "NEW"}}, 0); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	callsign, ok := s.Lookup(1)
	if !ok || callsign != "NEW" {
		t.Errorf("Lookup(1) = (%q, %v), want (NEW, true)", callsign, ok)
	}
	count, _ := s.Count()
	if count != 1 {
		t.Errorf("Count() = %d, want 1 (upsert should not duplicate)", count)
	}
}
