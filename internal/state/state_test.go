package state

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListSessions(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordOpen("jon@h1-a1b2", "h1", "h1.internal", "jon", 22); err != nil {
		t.Fatalf("RecordOpen: %v", err)
	}
	if err := s.RecordOpen("h2-ffee", "h2", "h2", "", 2222); err != nil {
		t.Fatalf("RecordOpen: %v", err)
	}
	if err := s.RecordClose("jon@h1-a1b2"); err != nil {
		t.Fatalf("RecordClose: %v", err)
	}

	recs, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d sessions, want 2", len(recs))
	}

	byID := map[string]SessionRecord{}
	for _, r := range recs {
		byID[r.ID] = r
	}
	if r := byID["jon@h1-a1b2"]; r.ClosedAt.IsZero() {
		t.Error("closed session has zero ClosedAt")
	}
	if r := byID["h2-ffee"]; !r.ClosedAt.IsZero() {
		t.Error("open session has non-zero ClosedAt")
	}
	if r := byID["h2-ffee"]; r.Port != 2222 {
		t.Errorf("port = %d", r.Port)
	}
}

func TestRecordOpenIdempotent(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 2; i++ {
		if err := s.RecordOpen("dup-0000", "h", "h", "", 0); err != nil {
			t.Fatalf("RecordOpen #%d: %v", i, err)
		}
	}
	recs, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d sessions, want 1", len(recs))
	}
}

func TestRecordCommands(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordCommand("h2-ffee", "ls -la", "allow", ""); err != nil {
		t.Fatalf("RecordCommand: %v", err)
	}
	if err := s.RecordCommand("h2-ffee", "rm -rf /", "block", "recursive force-delete of a root-level path"); err != nil {
		t.Fatalf("RecordCommand: %v", err)
	}

	recs, err := s.RecentCommands(10)
	if err != nil {
		t.Fatalf("RecentCommands: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d commands, want 2", len(recs))
	}
	// newest first
	if recs[0].Command != "rm -rf /" || recs[0].Verdict != "block" {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[1].Verdict != "allow" {
		t.Errorf("recs[1] = %+v", recs[1])
	}
}
