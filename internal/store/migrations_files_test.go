package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(""), ".")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestOwnerScopedTablesCarryOwnerColumn(t *testing.T) {
	contents, err := fs.ReadFile(Migrations(""), "0001_init.up.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	schema := string(contents)

	tables := []string{"interview_sessions", "daily_reports", "weekly_reports", "okr_periods", "okr_objectives", "okr_key_results", "audio_files"}
	for _, table := range tables {
		start := strings.Index(schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
		if start < 0 {
			t.Fatalf("table %s missing from init migration", table)
		}
		end := strings.Index(schema[start:], ");")
		body := schema[start : start+end]
		if !strings.Contains(body, "owner_id TEXT NOT NULL") {
			t.Fatalf("table %s must carry a non-null owner_id", table)
		}
	}
}

func TestKeyResultsCascadeFromObjectives(t *testing.T) {
	contents, err := fs.ReadFile(Migrations(""), "0001_init.up.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	if !strings.Contains(string(contents), "objective_id TEXT NOT NULL REFERENCES okr_objectives(id) ON DELETE CASCADE") {
		t.Fatal("okr_key_results.objective_id must cascade on objective delete")
	}
}
