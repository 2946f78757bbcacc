package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID("rpt")
		if !strings.HasPrefix(id, "rpt_") || len(id) != len("rpt_")+32 {
			t.Fatalf("unexpected id shape %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("unprefixed id must not contain a separator")
	}
}
