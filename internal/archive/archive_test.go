package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestRecordAndHistory(t *testing.T) {
	tempDir := t.TempDir()
	a := New(tempDir, nil)

	first, err := a.Record("usr_1", KindDaily, "rpt_1", "# 工作日报\n\n无\n", "Avery", "Generate daily report")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "usr_1", "daily", "rpt_1.md")); err != nil {
		t.Fatalf("report file missing: %v", err)
	}

	second, err := a.Record("usr_1", KindDaily, "rpt_1", "# 工作日报\n\n完成发布\n", "Avery", "Update daily report")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if second.Hash == first.Hash {
		t.Fatal("expected a new revision")
	}

	history, err := a.History("usr_1", KindDaily, "rpt_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}
	if history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("expected newest first, got %#v", history)
	}

	old, err := a.Content("usr_1", KindDaily, "rpt_1", first.Hash)
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if !strings.Contains(old, "无") {
		t.Fatalf("unexpected old content %q", old)
	}
}

func TestRecordUnchangedTextReturnsPreviousRevision(t *testing.T) {
	a := New(t.TempDir(), nil)
	first, err := a.Record("usr_1", KindWeekly, "wkr_1", "same", "Avery", "Generate weekly report")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	again, err := a.Record("usr_1", KindWeekly, "wkr_1", "same", "Avery", "Update weekly report")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected %s, got %s", first.Hash, again.Hash)
	}
}

func TestHistoryIsScopedToReport(t *testing.T) {
	a := New(t.TempDir(), nil)
	if _, err := a.Record("usr_1", KindDaily, "rpt_1", "a", "Avery", "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Record("usr_1", KindDaily, "rpt_2", "b", "Avery", "two"); err != nil {
		t.Fatal(err)
	}
	history, err := a.History("usr_1", KindDaily, "rpt_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || strings.TrimSpace(history[0].Message) != "one" {
		t.Fatalf("unexpected history %#v", history)
	}

	if _, err := a.History("usr_2", KindDaily, "rpt_1", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory for unknown owner, got %v", err)
	}
	if _, err := a.History("usr_1", KindWeekly, "wkr_9", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory for unknown report, got %v", err)
	}
}

func TestConcurrentRecordSameOwner(t *testing.T) {
	a := New(t.TempDir(), nil)
	const writers = 6

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Record("usr_1", KindDaily, fmt.Sprintf("rpt_%d", i), fmt.Sprintf("body %d", i), "Avery", "write")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Record() error = %v", err)
		}
	}
	for i := 0; i < writers; i++ {
		if _, err := a.History("usr_1", KindDaily, fmt.Sprintf("rpt_%d", i), 1); err != nil {
			t.Fatalf("History(rpt_%d) error = %v", i, err)
		}
	}
}

func TestSanitizeEmail(t *testing.T) {
	for in, want := range map[string]string{"Avery Lee": "Avery.Lee", "张三": "user", "a_b-c": "a.b.c"} {
		if got := sanitizeEmail(in); got != want {
			t.Errorf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
