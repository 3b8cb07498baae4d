package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

// sqlStore is shared by the sqlite and postgres drivers. Each schedule is one
// row holding its JSON record; position keeps insertion order.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
}

type scheduleRow struct {
	ID       string `db:"id"`
	Position int    `db:"position"`
	Record   string `db:"record"`
}

func newSQLStore(ctx context.Context, db *sqlx.DB, log logx.Logger) (*sqlStore, error) {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &sqlStore{db: db, log: log}, nil
}

func (s *sqlStore) Load(ctx context.Context) ([]schedule.Schedule, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var rows []scheduleRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, position, record FROM schedules ORDER BY position`); err != nil {
		return nil, err
	}
	out := make([]schedule.Schedule, 0, len(rows))
	for _, r := range rows {
		var sc schedule.Schedule
		if err := json.Unmarshal([]byte(r.Record), &sc); err != nil {
			return nil, fmt.Errorf("decode schedule %s: %w", r.ID, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// Save replaces the whole table inside one transaction.
func (s *sqlStore) Save(ctx context.Context, all []schedule.Schedule) (err error) {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM schedules`); err != nil {
		return err
	}
	insert := tx.Rebind(`INSERT INTO schedules(id, position, record) VALUES(?, ?, ?)`)
	for i, sc := range all {
		var b []byte
		b, err = json.Marshal(persisted(sc))
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, insert, sc.ID, i, string(b)); err != nil {
			return fmt.Errorf("insert %s: %w", sc.ID, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) Exists(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(1) FROM schedules WHERE id = ?`), id); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
