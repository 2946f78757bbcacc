package app

import (
	"context"
	"errors"
	"strings"

	"workreport/api/internal/report"
	"workreport/api/internal/store"
	"workreport/api/internal/util"
)

type PeriodInput struct {
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func validRange(start, end string) error {
	if !validDate(start) || !validDate(end) {
		return validationError("startDate and endDate must be YYYY-MM-DD")
	}
	// Lexical order is date order for YYYY-MM-DD.
	if start > end {
		return validationError("startDate must not be after endDate")
	}
	return nil
}

func (s *Service) CreatePeriod(ctx context.Context, owner store.OwnerID, in PeriodInput) (store.OkrPeriod, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return store.OkrPeriod{}, validationError("title is required")
	}
	if err := validRange(in.StartDate, in.EndDate); err != nil {
		return store.OkrPeriod{}, err
	}
	now := s.now().UTC()
	item := store.OkrPeriod{
		ID:        util.NewID("okp"),
		OwnerID:   owner,
		Title:     in.Title,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePeriod(ctx, item); err != nil {
		return store.OkrPeriod{}, err
	}
	return item, nil
}

func (s *Service) ListPeriods(ctx context.Context, owner store.OwnerID) ([]store.OkrPeriod, error) {
	return s.store.ListPeriods(ctx, owner)
}

func (s *Service) GetPeriod(ctx context.Context, owner store.OwnerID, periodID string) (store.OkrPeriod, error) {
	item, err := s.store.GetPeriod(ctx, owner, periodID)
	if err != nil {
		return store.OkrPeriod{}, mapStoreError(err)
	}
	return item, nil
}

// ActivePeriod returns the period covering today. The bool is false when
// none does.
func (s *Service) ActivePeriod(ctx context.Context, owner store.OwnerID) (store.OkrPeriod, bool, error) {
	item, err := s.store.GetActivePeriod(ctx, owner, s.today())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.OkrPeriod{}, false, nil
		}
		return store.OkrPeriod{}, false, err
	}
	return item, true, nil
}

// UpdatePeriod validates the range that would result from the patch before
// writing it.
func (s *Service) UpdatePeriod(ctx context.Context, owner store.OwnerID, periodID string, patch store.PeriodPatch) (store.OkrPeriod, error) {
	current, err := s.GetPeriod(ctx, owner, periodID)
	if err != nil {
		return store.OkrPeriod{}, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return store.OkrPeriod{}, validationError("title must not be blank")
		}
		patch.Title = &title
	}
	start, end := current.StartDate, current.EndDate
	if patch.StartDate != nil {
		start = *patch.StartDate
	}
	if patch.EndDate != nil {
		end = *patch.EndDate
	}
	if err := validRange(start, end); err != nil {
		return store.OkrPeriod{}, err
	}
	item, err := s.store.UpdatePeriod(ctx, owner, periodID, patch)
	if err != nil {
		return store.OkrPeriod{}, mapStoreError(err)
	}
	return item, nil
}

// DeletePeriod removes the period with its objectives and key results.
func (s *Service) DeletePeriod(ctx context.Context, owner store.OwnerID, periodID string) error {
	return found(s.store.DeletePeriod(ctx, owner, periodID))
}

// OkrTree returns the period's objectives and key results with progress
// filled in.
func (s *Service) OkrTree(ctx context.Context, owner store.OwnerID, periodID string) (store.OkrTree, error) {
	tree, err := s.store.GetOkrTree(ctx, owner, periodID)
	if err != nil {
		return store.OkrTree{}, mapStoreError(err)
	}
	return report.WithProgress(tree), nil
}

type ObjectiveInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Service) CreateObjective(ctx context.Context, owner store.OwnerID, periodID string, in ObjectiveInput) (store.Objective, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return store.Objective{}, validationError("title is required")
	}
	now := s.now().UTC()
	item := store.Objective{
		ID:          util.NewID("obj"),
		OwnerID:     owner,
		PeriodID:    periodID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		KeyResults:  []store.KeyResult{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := found(s.store.CreateObjective(ctx, item)); err != nil {
		return store.Objective{}, err
	}
	return item, nil
}

func (s *Service) UpdateObjective(ctx context.Context, owner store.OwnerID, objectiveID string, patch store.ObjectivePatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return validationError("title must not be blank")
	}
	return found(s.store.UpdateObjective(ctx, owner, objectiveID, patch))
}

func (s *Service) DeleteObjective(ctx context.Context, owner store.OwnerID, objectiveID string) error {
	return found(s.store.DeleteObjective(ctx, owner, objectiveID))
}

type KeyResultInput struct {
	Title        string `json:"title"`
	TargetValue  string `json:"targetValue"`
	CurrentValue string `json:"currentValue"`
	Unit         string `json:"unit"`
}

func (s *Service) CreateKeyResult(ctx context.Context, owner store.OwnerID, objectiveID string, in KeyResultInput) (store.KeyResult, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return store.KeyResult{}, validationError("title is required")
	}
	now := s.now().UTC()
	item := store.KeyResult{
		ID:           util.NewID("kr"),
		OwnerID:      owner,
		ObjectiveID:  objectiveID,
		Title:        in.Title,
		TargetValue:  strings.TrimSpace(in.TargetValue),
		CurrentValue: strings.TrimSpace(in.CurrentValue),
		Unit:         strings.TrimSpace(in.Unit),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := found(s.store.CreateKeyResult(ctx, item)); err != nil {
		return store.KeyResult{}, err
	}
	if pct, ok := report.KeyResultProgress(item.CurrentValue, item.TargetValue); ok {
		item.ProgressPercent = &pct
	}
	return item, nil
}

func (s *Service) UpdateKeyResult(ctx context.Context, owner store.OwnerID, keyResultID string, patch store.KeyResultPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return validationError("title must not be blank")
	}
	return found(s.store.UpdateKeyResult(ctx, owner, keyResultID, patch))
}

func (s *Service) DeleteKeyResult(ctx context.Context, owner store.OwnerID, keyResultID string) error {
	return found(s.store.DeleteKeyResult(ctx, owner, keyResultID))
}

// found converts a store (affected, err) pair into a not-found error when
// nothing matched.
func found(ok bool, err error) error {
	if err != nil {
		return mapStoreError(err)
	}
	if !ok {
		return notFoundError()
	}
	return nil
}
