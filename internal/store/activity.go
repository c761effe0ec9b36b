package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
)

// ActivityStore reads the trail the fridge_items triggers write. There is no
// write path.
type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func scanActivity(scanner interface{ Scan(...any) error }) (*model.Activity, error) {
	var a model.Activity
	var householdID sql.NullString
	var changes string
	err := scanner.Scan(&a.ID, &householdID, &a.Action, &a.ItemName, &a.ItemDrawer, &a.UserEmail, &changes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if householdID.Valid {
		a.HouseholdID = &householdID.String
	}
	a.Changes = map[string]model.Change{}
	if changes != "" {
		if err := json.Unmarshal([]byte(changes), &a.Changes); err != nil {
			return nil, fmt.Errorf("decode changes: %w", err)
		}
	}
	return &a, nil
}

const activityCols = `id, household_id, action, item_name, item_drawer, user_email, changes, created_at`

// List returns one page of the scope's activity, newest first.
func (s *ActivityStore) List(ctx context.Context, f scope.Filter, limit, offset int) ([]model.Activity, error) {
	if err := authorize(ctx, s.db, f); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where, args := scopeWhere(f)
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityCols+` FROM activity_log WHERE `+where+`
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	activities := []model.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}
