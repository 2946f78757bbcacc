package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestOrderClauseWhitelistsColumns(t *testing.T) {
	allowed := map[string]string{"createdAt": "created_at", "date": "report_date"}

	cases := []struct {
		opts ListOptions
		want string
	}{
		{ListOptions{}, " ORDER BY created_at DESC, id DESC"},
		{ListOptions{OrderBy: "date", Ascending: true}, " ORDER BY report_date ASC, id ASC"},
		{ListOptions{OrderBy: "1; DROP TABLE users", Limit: 5}, " ORDER BY created_at DESC, id DESC LIMIT 5"},
	}
	for _, tc := range cases {
		if got := orderClause(tc.opts, allowed, "created_at"); got != tc.want {
			t.Fatalf("orderClause(%+v) = %q, want %q", tc.opts, got, tc.want)
		}
	}
}

func TestNotFoundMapsNoRows(t *testing.T) {
	if !errors.Is(notFound(sql.ErrNoRows), ErrNotFound) {
		t.Fatal("sql.ErrNoRows must map to ErrNotFound")
	}
	other := fmt.Errorf("boom")
	if notFound(other) != other {
		t.Fatal("other errors must pass through")
	}
}
