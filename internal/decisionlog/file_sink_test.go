package decisionlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileSinkAppendsPerDay(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)
	first := entryAt(t, day1)
	second := entryAt(t, day1.Add(30*time.Second))
	third := entryAt(t, day2)
	for _, e := range []Entry{first, second, third} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "decisions-2026-03-01.jsonl"))
	if err != nil {
		t.Fatalf("read day1: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], first.ID) || !strings.Contains(lines[1], second.ID) {
		t.Fatalf("unexpected day1 contents: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName("2026-03-02"))); err != nil {
		t.Fatalf("expected day2 file: %v", err)
	}

	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != third.ID || recent[1].ID != second.ID || recent[2].ID != first.ID {
		t.Fatalf("unexpected recent order")
	}
	if recent[0].Digest != third.Digest || *recent[0].Request.Environment != "prod" {
		t.Fatalf("entry fields lost: %+v", recent[0])
	}

	recent, err = s.Recent(ctx, 1)
	if err != nil || len(recent) != 1 || recent[0].ID != third.ID {
		t.Fatalf("expected newest only, got %v %+v", err, recent)
	}
}

func TestFileSinkPruneRemovesOldDays(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			if err := s.Append(ctx, entryAt(t, base.AddDate(0, 0, i))); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pruned, err := s.Prune(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 4 {
		t.Fatalf("expected 4 pruned entries, got %d", pruned)
	}
	for _, day := range []string{"2026-03-01", "2026-03-02"} {
		if _, err := os.Stat(filepath.Join(dir, FileName(day))); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, got %v", day, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("unrelated file removed: %v", err)
	}

	if err := s.Append(ctx, entryAt(t, base.AddDate(0, 0, 2))); err != nil {
		t.Fatalf("append after prune: %v", err)
	}
	recent, err := s.Recent(ctx, 0)
	if err != nil || len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %v %d", err, len(recent))
	}
}

func TestFileSinkErrors(t *testing.T) {
	if _, err := NewFileSink(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName("2026-01-01")), []byte("{not json}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Recent(context.Background(), 5); err == nil {
		t.Fatalf("expected decode error")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Append(context.Background(), entryAt(t, time.Now())); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
