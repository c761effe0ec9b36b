package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/frostbox/internal/apperr"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/scope"
)

type DrawerStore struct {
	db *sql.DB
}

func NewDrawerStore(db *sql.DB) *DrawerStore {
	return &DrawerStore{db: db}
}

func scanDrawer(scanner interface{ Scan(...any) error }) (*model.Drawer, error) {
	var d model.Drawer
	var householdID sql.NullString
	err := scanner.Scan(&d.ID, &d.UserID, &householdID, &d.Name, &d.Icon, &d.SortOrder, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if householdID.Valid {
		d.HouseholdID = &householdID.String
	}
	return &d, nil
}

const drawerCols = `id, user_id, household_id, name, icon, sort_order, created_at`

// List returns the drawers of a scope in display order.
func (s *DrawerStore) List(ctx context.Context, f scope.Filter) ([]model.Drawer, error) {
	if err := authorize(ctx, s.db, f); err != nil {
		return nil, err
	}
	where, args := scopeWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+drawerCols+` FROM drawers WHERE `+where+` ORDER BY sort_order ASC, created_at ASC, rowid ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list drawers: %w", err)
	}
	defer rows.Close()

	drawers := []model.Drawer{}
	for rows.Next() {
		d, err := scanDrawer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drawer: %w", err)
		}
		drawers = append(drawers, *d)
	}
	return drawers, rows.Err()
}

func getDrawer(ctx context.Context, q querier, f scope.Filter, id string) (*model.Drawer, error) {
	where, args := scopeWhere(f)
	row := q.QueryRowContext(ctx,
		`SELECT `+drawerCols+` FROM drawers WHERE id = ? AND `+where,
		append([]any{id}, args...)...,
	)
	d, err := scanDrawer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("drawer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get drawer: %w", err)
	}
	return d, nil
}

// Create appends a drawer to the scope. Without an explicit sort order it goes
// after the existing drawers.
func (s *DrawerStore) Create(ctx context.Context, f scope.Filter, draft model.DrawerDraft) (*model.Drawer, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return nil, apperr.Validation("drawer name is required")
	}
	icon := strings.TrimSpace(draft.Icon)
	if icon == "" {
		icon = model.DefaultDrawerIcon
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := authorize(ctx, tx, f); err != nil {
		return nil, err
	}

	var sortOrder int
	if draft.SortOrder != nil {
		sortOrder = *draft.SortOrder
	} else {
		where, args := scopeWhere(f)
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM drawers WHERE `+where, args...).Scan(&sortOrder); err != nil {
			return nil, fmt.Errorf("count drawers: %w", err)
		}
	}

	id := newID()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drawers (id, user_id, household_id, name, icon, sort_order) VALUES (?, ?, ?, ?, ?, ?)`,
		id, f.UserID, nullString(f.HouseholdID), name, icon, sortOrder,
	); err != nil {
		return nil, fmt.Errorf("insert drawer: %w", err)
	}

	d, err := getDrawer(ctx, tx, f, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit drawer: %w", err)
	}
	return d, nil
}

func (s *DrawerStore) Update(ctx context.Context, f scope.Filter, id string, patch model.DrawerPatch) (*model.Drawer, error) {
	var sets []string
	var args []any
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.Validation("drawer name is required")
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if patch.Icon != nil {
		icon := strings.TrimSpace(*patch.Icon)
		if icon == "" {
			icon = model.DefaultDrawerIcon
		}
		sets = append(sets, "icon = ?")
		args = append(args, icon)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := authorize(ctx, tx, f); err != nil {
		return nil, err
	}
	if len(sets) > 0 {
		where, scopeArgs := scopeWhere(f)
		args = append(args, id)
		args = append(args, scopeArgs...)
		res, err := tx.ExecContext(ctx,
			`UPDATE drawers SET `+strings.Join(sets, ", ")+` WHERE id = ? AND `+where,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("update drawer: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			return nil, apperr.NotFound("drawer not found")
		}
	}

	d, err := getDrawer(ctx, tx, f, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit drawer: %w", err)
	}
	return d, nil
}

// Delete removes a drawer. Items keep their drawer label.
func (s *DrawerStore) Delete(ctx context.Context, f scope.Filter, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := authorize(ctx, tx, f); err != nil {
		return err
	}
	where, args := scopeWhere(f)
	res, err := tx.ExecContext(ctx,
		`DELETE FROM drawers WHERE id = ? AND `+where,
		append([]any{id}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("delete drawer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("drawer not found")
	}
	return tx.Commit()
}

// Reorder assigns sort_order 0..n-1 following ids, in one transaction. Any id
// outside the scope aborts the whole reorder.
func (s *DrawerStore) Reorder(ctx context.Context, f scope.Filter, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperr.Validation("drawer %s appears twice in the new order", id)
		}
		seen[id] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := authorize(ctx, tx, f); err != nil {
		return err
	}

	where, args := scopeWhere(f)
	stmt, err := tx.PrepareContext(ctx, `UPDATE drawers SET sort_order = ? WHERE id = ? AND `+where)
	if err != nil {
		return fmt.Errorf("prepare reorder: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		res, err := stmt.ExecContext(ctx, append([]any{i, id}, args...)...)
		if err != nil {
			return fmt.Errorf("update sort order: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return apperr.NotFound("drawer %s not found", id)
		}
	}

	return tx.Commit()
}
