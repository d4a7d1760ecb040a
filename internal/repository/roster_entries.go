package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

// GetRosterEntriesByMonth 当 scope.All 为 false 时只返回 scope.EmployeeID 的排班
func (r *Repository) GetRosterEntriesByMonth(scope domain.Scope, month domain.Month) ([]*domain.RosterEntry, error) {
	query := `
		SELECT employee_id, to_char(work_date, 'YYYY-MM-DD'), shift_id, is_off
		FROM roster_entries
		WHERE work_date >= $1 AND work_date < $2 AND ($3 OR employee_id = $4)
		ORDER BY employee_id, work_date
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	start, end := month.Range()
	args := []any{start.Format(domain.DateLayout), end.Format(domain.DateLayout), scope.All, scope.EmployeeID}

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.RosterEntry, 0)
	for rows.Next() {
		entry := &domain.RosterEntry{}
		if err := rows.Scan(&entry.EmployeeID, &entry.Date, &entry.ShiftID, &entry.IsOff); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// UpsertRosterEntries 在同一个事务中写入整批排班，任何一条失败整批回滚
func (r *Repository) UpsertRosterEntries(entries []domain.RosterEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO roster_entries (employee_id, work_date, shift_id, is_off)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (employee_id, work_date)
		DO UPDATE SET shift_id = EXCLUDED.shift_id, is_off = EXCLUDED.is_off, updated_at = NOW()
	`

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.EmployeeID, string(entry.Date), entry.ShiftID, entry.IsOff); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// DeleteRosterEntry 如果记录不存在则返回 sql.ErrNoRows
func (r *Repository) DeleteRosterEntry(employeeID int64, date domain.Date) error {
	query := `
		DELETE FROM roster_entries WHERE employee_id = $1 AND work_date = $2
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	result, err := r.dbpool.ExecContext(ctx, query, employeeID, string(date))
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
