package store

import (
	"context"
	"fmt"
)

const periodColumns = `id, owner_id, title, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), created_at, updated_at`

func scanPeriod(row rowScanner) (OkrPeriod, error) {
	var item OkrPeriod
	var owner string
	err := row.Scan(&item.ID, &owner, &item.Title, &item.StartDate, &item.EndDate, &item.CreatedAt, &item.UpdatedAt)
	item.OwnerID = OwnerID(owner)
	return item, err
}

func (s *PostgresStore) CreatePeriod(ctx context.Context, item OkrPeriod) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO okr_periods (id, owner_id, title, start_date, end_date)
		VALUES ($1, $2, $3, $4::date, $5::date)
	`, item.ID, string(item.OwnerID), item.Title, item.StartDate, item.EndDate)
	if err != nil {
		return fmt.Errorf("create okr period: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPeriod(ctx context.Context, owner OwnerID, periodID string) (OkrPeriod, error) {
	item, err := scanPeriod(s.db.QueryRowContext(ctx, `
		SELECT `+periodColumns+` FROM okr_periods WHERE id=$1 AND owner_id=$2
	`, periodID, string(owner)))
	if err != nil {
		return OkrPeriod{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) ListPeriods(ctx context.Context, owner OwnerID) ([]OkrPeriod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+periodColumns+`
		FROM okr_periods
		WHERE owner_id=$1
		ORDER BY start_date DESC, created_at DESC
	`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("list okr periods: %w", err)
	}
	defer rows.Close()

	items := make([]OkrPeriod, 0)
	for rows.Next() {
		item, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan okr period: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate okr periods: %w", err)
	}
	return items, nil
}

// GetActivePeriod returns the newest period whose range contains day
// (YYYY-MM-DD).
func (s *PostgresStore) GetActivePeriod(ctx context.Context, owner OwnerID, day string) (OkrPeriod, error) {
	item, err := scanPeriod(s.db.QueryRowContext(ctx, `
		SELECT `+periodColumns+`
		FROM okr_periods
		WHERE owner_id=$1 AND start_date <= $2::date AND end_date >= $2::date
		ORDER BY start_date DESC, created_at DESC
		LIMIT 1
	`, string(owner), day))
	if err != nil {
		return OkrPeriod{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) UpdatePeriod(ctx context.Context, owner OwnerID, periodID string, patch PeriodPatch) (OkrPeriod, error) {
	item, err := scanPeriod(s.db.QueryRowContext(ctx, `
		UPDATE okr_periods
		SET title=COALESCE($3, title),
			start_date=COALESCE($4::date, start_date),
			end_date=COALESCE($5::date, end_date),
			updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
		RETURNING `+periodColumns,
		periodID, string(owner), patch.Title, patch.StartDate, patch.EndDate,
	))
	if err != nil {
		return OkrPeriod{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) DeletePeriod(ctx context.Context, owner OwnerID, periodID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM okr_periods WHERE id=$1 AND owner_id=$2`, periodID, string(owner))
	if err != nil {
		return false, fmt.Errorf("delete okr period: %w", err)
	}
	return affected(result, "delete okr period")
}

// CreateObjective inserts the objective only when its period belongs to the
// same owner.
func (s *PostgresStore) CreateObjective(ctx context.Context, item Objective) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO okr_objectives (id, owner_id, period_id, title, description, position)
		SELECT $1, $2, p.id, $4, $5,
			COALESCE((SELECT MAX(position) + 1 FROM okr_objectives WHERE period_id=p.id), 0)
		FROM okr_periods p
		WHERE p.id=$3 AND p.owner_id=$2
	`, item.ID, string(item.OwnerID), item.PeriodID, item.Title, item.Description)
	if err != nil {
		return false, fmt.Errorf("create objective: %w", err)
	}
	return affected(result, "create objective")
}

func (s *PostgresStore) UpdateObjective(ctx context.Context, owner OwnerID, objectiveID string, patch ObjectivePatch) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE okr_objectives
		SET title=COALESCE($3, title), description=COALESCE($4, description), updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, objectiveID, string(owner), patch.Title, patch.Description)
	if err != nil {
		return false, fmt.Errorf("update objective: %w", err)
	}
	return affected(result, "update objective")
}

// DeleteObjective removes the objective; its key results go with it through
// the foreign key cascade.
func (s *PostgresStore) DeleteObjective(ctx context.Context, owner OwnerID, objectiveID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM okr_objectives WHERE id=$1 AND owner_id=$2`, objectiveID, string(owner))
	if err != nil {
		return false, fmt.Errorf("delete objective: %w", err)
	}
	return affected(result, "delete objective")
}

func (s *PostgresStore) CreateKeyResult(ctx context.Context, item KeyResult) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO okr_key_results (id, owner_id, objective_id, title, target_value, current_value, unit, position)
		SELECT $1, $2, o.id, $4, $5, $6, $7,
			COALESCE((SELECT MAX(position) + 1 FROM okr_key_results WHERE objective_id=o.id), 0)
		FROM okr_objectives o
		WHERE o.id=$3 AND o.owner_id=$2
	`, item.ID, string(item.OwnerID), item.ObjectiveID, item.Title, item.TargetValue, item.CurrentValue, item.Unit)
	if err != nil {
		return false, fmt.Errorf("create key result: %w", err)
	}
	return affected(result, "create key result")
}

func (s *PostgresStore) UpdateKeyResult(ctx context.Context, owner OwnerID, keyResultID string, patch KeyResultPatch) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE okr_key_results
		SET title=COALESCE($3, title),
			target_value=COALESCE($4, target_value),
			current_value=COALESCE($5, current_value),
			unit=COALESCE($6, unit),
			updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, keyResultID, string(owner), patch.Title, patch.TargetValue, patch.CurrentValue, patch.Unit)
	if err != nil {
		return false, fmt.Errorf("update key result: %w", err)
	}
	return affected(result, "update key result")
}

func (s *PostgresStore) DeleteKeyResult(ctx context.Context, owner OwnerID, keyResultID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM okr_key_results WHERE id=$1 AND owner_id=$2`, keyResultID, string(owner))
	if err != nil {
		return false, fmt.Errorf("delete key result: %w", err)
	}
	return affected(result, "delete key result")
}

// GetOkrTree loads a period with its objectives and key results in position
// order.
func (s *PostgresStore) GetOkrTree(ctx context.Context, owner OwnerID, periodID string) (OkrTree, error) {
	period, err := s.GetPeriod(ctx, owner, periodID)
	if err != nil {
		return OkrTree{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, period_id, title, description, position, created_at, updated_at
		FROM okr_objectives
		WHERE period_id=$1 AND owner_id=$2
		ORDER BY position ASC, created_at ASC
	`, periodID, string(owner))
	if err != nil {
		return OkrTree{}, fmt.Errorf("list objectives: %w", err)
	}
	defer rows.Close()

	objectives := make([]Objective, 0)
	index := map[string]int{}
	for rows.Next() {
		var item Objective
		var ownerID string
		if err := rows.Scan(&item.ID, &ownerID, &item.PeriodID, &item.Title, &item.Description, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return OkrTree{}, fmt.Errorf("scan objective: %w", err)
		}
		item.OwnerID = OwnerID(ownerID)
		item.KeyResults = []KeyResult{}
		index[item.ID] = len(objectives)
		objectives = append(objectives, item)
	}
	if err := rows.Err(); err != nil {
		return OkrTree{}, fmt.Errorf("iterate objectives: %w", err)
	}

	krRows, err := s.db.QueryContext(ctx, `
		SELECT kr.id, kr.owner_id, kr.objective_id, kr.title, kr.target_value, kr.current_value, kr.unit, kr.position, kr.created_at, kr.updated_at
		FROM okr_key_results kr
		JOIN okr_objectives o ON o.id = kr.objective_id
		WHERE o.period_id=$1 AND kr.owner_id=$2
		ORDER BY kr.position ASC, kr.created_at ASC
	`, periodID, string(owner))
	if err != nil {
		return OkrTree{}, fmt.Errorf("list key results: %w", err)
	}
	defer krRows.Close()

	for krRows.Next() {
		var item KeyResult
		var ownerID string
		if err := krRows.Scan(&item.ID, &ownerID, &item.ObjectiveID, &item.Title, &item.TargetValue, &item.CurrentValue, &item.Unit, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return OkrTree{}, fmt.Errorf("scan key result: %w", err)
		}
		item.OwnerID = OwnerID(ownerID)
		if i, ok := index[item.ObjectiveID]; ok {
			objectives[i].KeyResults = append(objectives[i].KeyResults, item)
		}
	}
	if err := krRows.Err(); err != nil {
		return OkrTree{}, fmt.Errorf("iterate key results: %w", err)
	}

	return OkrTree{Period: period, Objectives: objectives}, nil
}
