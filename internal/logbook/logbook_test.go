package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logbook.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestEntriesCarryLevelAndTimestamp(t *testing.T) {
	ts := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "logbook.log")
	book, err := New(path, WithClock(func() time.Time { return ts }))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Warn("revision bound reached")
	lines, total := book.Tail(1)
	if total != 1 || len(lines) != 1 {
		t.Fatalf("unexpected tail: %v / %d", lines, total)
	}
	if !strings.HasPrefix(lines[0], "2026-08-01T09:30:00Z") {
		t.Fatalf("missing timestamp prefix: %q", lines[0])
	}
	if !strings.Contains(lines[0], "WARN") {
		t.Fatalf("missing level: %q", lines[0])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil logbook tail = %v / %d", lines, total)
	}
}
