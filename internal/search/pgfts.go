package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher on Postgres. It matches the generated tsvector
// and, for text the 'simple' parser does not split (CJK), a substring match.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	return p.SearchContext(context.Background(), q)
}

func (p *PgFTS) SearchContext(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.Owner == "" {
		return nil, 0, fmt.Errorf("search owner is required")
	}
	limit, offset := normalizeLimit(q.Limit, q.Offset)

	sqlText, args := buildPgQuery(q)

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+sqlText+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, date
		FROM (%s) sub
		ORDER BY rank DESC, date DESC
		LIMIT %d OFFSET %d`, sqlText, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Date); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// buildPgQuery returns the UNION of per-kind sub-queries. $1 is the owner,
// $2 the query text.
func buildPgQuery(q Query) (string, []any) {
	args := []any{string(q.Owner), q.Text}
	const tsQuery = "plainto_tsquery('simple', $2)"
	const like = "'%' || $2 || '%'"

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultDaily {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'daily'::text AS type, d.id, d.summary AS title,
				ts_headline('simple', d.rendered_text, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				to_char(d.report_date, 'YYYY-MM-DD') AS date,
				ts_rank(d.fts, %[1]s) AS rank
			FROM daily_reports d
			WHERE d.owner_id = $1 AND (d.fts @@ %[1]s OR d.rendered_text ILIKE %[2]s)`, tsQuery, like))
	}
	if q.FilterType == "" || q.FilterType == ResultWeekly {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'weekly'::text AS type, w.id, w.title,
				ts_headline('simple', w.rendered_text, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				to_char(w.week_start, 'YYYY-MM-DD') AS date,
				ts_rank(w.fts, %[1]s) AS rank
			FROM weekly_reports w
			WHERE w.owner_id = $1 AND (w.fts @@ %[1]s OR w.rendered_text ILIKE %[2]s)`, tsQuery, like))
	}
	return strings.Join(subQueries, " UNION ALL "), args
}

// LoadRecords returns every report for a full Meilisearch reindex.
func (p *PgFTS) LoadRecords(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, 'daily', summary, rendered_text, to_char(report_date, 'YYYY-MM-DD') FROM daily_reports
		UNION ALL
		SELECT id, owner_id, 'weekly', title, rendered_text, to_char(week_start, 'YYYY-MM-DD') FROM weekly_reports
	`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var typ string
		if err := rows.Scan(&r.ID, &r.OwnerID, &typ, &r.Title, &r.Body, &r.Date); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Type = ResultType(typ)
		records = append(records, r)
	}
	return records, rows.Err()
}
