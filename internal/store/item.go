package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
)

// DateFormat is the layout of item expiry dates.
const DateFormat = "2006-01-02"

type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

func scanItem(scanner interface{ Scan(...any) error }) (*model.Item, error) {
	var it model.Item
	var householdID, expiry, notes sql.NullString
	var position sql.NullInt64
	err := scanner.Scan(
		&it.ID, &it.UserID, &householdID, &it.Name, &it.Drawer, &it.Quantity,
		&expiry, &notes, &position, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if householdID.Valid {
		it.HouseholdID = &householdID.String
	}
	it.ExpiryDate = expiry.String
	it.Notes = notes.String
	if position.Valid {
		p := int(position.Int64)
		it.Position = &p
	}
	return &it, nil
}

const itemCols = `id, user_id, household_id, name, drawer, quantity, expiry_date, notes, position, created_at, updated_at`

// List returns the items of a scope, newest first.
func (s *ItemStore) List(ctx context.Context, f scope.Filter) ([]model.Item, error) {
	if err := authorize(ctx, s.db, f); err != nil {
		return nil, err
	}
	where, args := scopeWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM fridge_items WHERE `+where+` ORDER BY created_at DESC, rowid DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *ItemStore) Get(ctx context.Context, f scope.Filter, id string) (*model.Item, error) {
	if err := authorize(ctx, s.db, f); err != nil {
		return nil, err
	}
	return getItem(ctx, s.db, f, id)
}

func getItem(ctx context.Context, q querier, f scope.Filter, id string) (*model.Item, error) {
	where, args := scopeWhere(f)
	row := q.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM fridge_items WHERE id = ? AND `+where,
		append([]any{id}, args...)...,
	)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// positionTaken reports whether another item in the scope holds position.
func positionTaken(ctx context.Context, q querier, f scope.Filter, position int, excludeID string) (bool, error) {
	where, args := scopeWhere(f)
	args = append(args, position, excludeID)
	var taken bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM fridge_items WHERE `+where+` AND position = ? AND id != ?)`,
		args...,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check position: %w", err)
	}
	return taken, nil
}

// PositionAvailable reports whether position is free in the scope, ignoring
// excludeID. The answer is advisory; writes re-check inside their transaction.
func (s *ItemStore) PositionAvailable(ctx context.Context, f scope.Filter, position int, excludeID string) (bool, error) {
	if position <= 0 {
		return false, apperr.Validation("position must be a positive number")
	}
	if err := authorize(ctx, s.db, f); err != nil {
		return false, err
	}
	taken, err := positionTaken(ctx, s.db, f, position, excludeID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func validateItemFields(name, drawer *string, quantity *int, expiry *string, position *int) error {
	if name != nil && strings.TrimSpace(*name) == "" {
		return apperr.Validation("name is required")
	}
	if drawer != nil && strings.TrimSpace(*drawer) == "" {
		return apperr.Validation("drawer is required")
	}
	if quantity != nil && *quantity < 1 {
		return apperr.Validation("quantity must be at least 1")
	}
	if expiry != nil && *expiry != "" {
		if _, err := time.Parse(DateFormat, *expiry); err != nil {
			return apperr.Validation("expiry date must look like YYYY-MM-DD")
		}
	}
	if position != nil && *position <= 0 {
		return apperr.Validation("position must be a positive number")
	}
	return nil
}

// Create checks the position and inserts the item in one transaction. A
// repeated IdempotencyKey from the same user in the same scope returns the row
// created first.
func (s *ItemStore) Create(ctx context.Context, f scope.Filter, draft model.ItemDraft) (*model.Item, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	draft.Drawer = strings.TrimSpace(draft.Drawer)
	if err := validateItemFields(&draft.Name, &draft.Drawer, &draft.Quantity, &draft.ExpiryDate, draft.Position); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := authorize(ctx, tx, f); err != nil {
		return nil, err
	}

	if draft.IdempotencyKey != "" {
		where, args := scopeWhere(f)
		row := tx.QueryRowContext(ctx,
			`SELECT `+itemCols+` FROM fridge_items WHERE user_id = ? AND idempotency_key = ? AND `+where,
			append([]any{f.UserID, draft.IdempotencyKey}, args...)...,
		)
		existing, err := scanItem(row)
		if err == nil {
			return existing, tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get item by idempotency key: %w", err)
		}
	}

	if draft.Position != nil {
		taken, err := positionTaken(ctx, tx, f, *draft.Position, "")
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.PositionConflict(*draft.Position)
		}
	}

	id := newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO fridge_items
		 (id, user_id, household_id, name, drawer, quantity, expiry_date, notes, position, idempotency_key, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.UserID, nullString(f.HouseholdID), draft.Name, draft.Drawer, draft.Quantity,
		nullString(draft.ExpiryDate), nullString(draft.Notes), nullInt(draft.Position),
		nullString(draft.IdempotencyKey), f.UserID,
	)
	if err != nil {
		return nil, insertItemError(err, draft.Position)
	}

	it, err := getItem(ctx, tx, f, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item: %w", err)
	}
	return it, nil
}

func insertItemError(err error, position *int) error {
	switch {
	case position != nil && isUniqueViolation(err, "position"):
		return apperr.PositionConflict(*position)
	case isUniqueViolation(err, "idempotency_key"):
		return apperr.Conflict("this item was already added")
	default:
		return fmt.Errorf("insert item: %w", err)
	}
}

// Update applies the non-nil fields of patch. The position check excludes the
// item itself, so saving an item with its current position is not a conflict.
func (s *ItemStore) Update(ctx context.Context, f scope.Filter, id string, patch model.ItemPatch) (*model.Item, error) {
	if patch.ClearPosition {
		patch.Position = nil
	}
	if err := validateItemFields(patch.Name, patch.Drawer, patch.Quantity, patch.ExpiryDate, patch.Position); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := authorize(ctx, tx, f); err != nil {
		return nil, err
	}
	current, err := getItem(ctx, tx, f, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, tx.Commit()
	}

	if patch.Position != nil {
		taken, err := positionTaken(ctx, tx, f, *patch.Position, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.PositionConflict(*patch.Position)
		}
	}

	sets := []string{"updated_by = ?", "updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now')"}
	args := []any{f.UserID}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*patch.Name))
	}
	if patch.Drawer != nil {
		sets = append(sets, "drawer = ?")
		args = append(args, strings.TrimSpace(*patch.Drawer))
	}
	if patch.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *patch.Quantity)
	}
	if patch.ExpiryDate != nil {
		sets = append(sets, "expiry_date = ?")
		args = append(args, nullString(*patch.ExpiryDate))
	}
	if patch.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, nullString(*patch.Notes))
	}
	switch {
	case patch.ClearPosition:
		sets = append(sets, "position = NULL")
	case patch.Position != nil:
		sets = append(sets, "position = ?")
		args = append(args, *patch.Position)
	}

	where, scopeArgs := scopeWhere(f)
	args = append(args, id)
	args = append(args, scopeArgs...)
	if _, err := tx.ExecContext(ctx,
		`UPDATE fridge_items SET `+strings.Join(sets, ", ")+` WHERE id = ? AND `+where,
		args...,
	); err != nil {
		if patch.Position != nil && isUniqueViolation(err, "position") {
			return nil, apperr.PositionConflict(*patch.Position)
		}
		return nil, fmt.Errorf("update item: %w", err)
	}

	it, err := getItem(ctx, tx, f, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item: %w", err)
	}
	return it, nil
}

// Delete hard-deletes an item, which frees its position at once. The actor is
// stamped first so the activity trail records who removed it.
func (s *ItemStore) Delete(ctx context.Context, f scope.Filter, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := authorize(ctx, tx, f); err != nil {
		return err
	}

	where, args := scopeWhere(f)
	args = append([]any{id}, args...)
	res, err := tx.ExecContext(ctx,
		`UPDATE fridge_items SET updated_by = ? WHERE id = ? AND `+where,
		append([]any{f.UserID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("stamp item actor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("item not found")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM fridge_items WHERE id = ? AND `+where, args...); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return tx.Commit()
}
