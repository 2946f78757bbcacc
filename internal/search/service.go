package search

import (
	"context"

	"go.uber.org/zap"
)

type indexer interface {
	Searcher
	Index(records ...Record) error
	Delete(id string) error
}

// Service tries Meilisearch first and falls back to Postgres.
type Service struct {
	meili  indexer
	pgfts  Searcher
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	s := &Service{pgfts: pgfts, logger: logger}
	if meili != nil {
		s.meili = meili
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Index pushes a record to Meilisearch in the background. Postgres needs no
// indexing step.
func (s *Service) Index(record Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.Index(record); err != nil {
			s.logger.Warn("index report", zap.String("id", record.ID), zap.Error(err))
		}
	}()
}

// Delete removes a record from Meilisearch in the background.
func (s *Service) Delete(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.Delete(id); err != nil {
			s.logger.Warn("delete report from index", zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexFromPG copies every report from Postgres into Meilisearch.
func (s *Service) ReindexFromPG(ctx context.Context) {
	pg, ok := s.pgfts.(*PgFTS)
	if s.meili == nil || !s.meili.Healthy() || !ok {
		return
	}
	records, err := pg.LoadRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.Index(records...); err != nil {
		s.logger.Warn("reindex failed", zap.Error(err))
		return
	}
	s.logger.Info("search index rebuilt", zap.Int("records", len(records)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
