package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Persisted session keys. They mirror what a browser client keeps in local storage.
const (
	KeyToken    = "token"
	KeyUserID   = "user_id"
	KeyUserRole = "user_role"
)

// KV is the per-browser persisted session storage.
type KV interface {
	Get(ctx context.Context, browserID, key string) (string, error)
	GetAll(ctx context.Context, browserID string) (map[string]string, error)
	SetMany(ctx context.Context, browserID string, values map[string]string) error
	Clear(ctx context.Context, browserID string) error
	Ping(ctx context.Context) error
}

// SQLStore keeps session values in the session_values table. The driver name
// selects the placeholder dialect: pgx uses $n, sqlite and mysql use ?.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQL(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) Get(ctx context.Context, browserID, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT item_value FROM session_values WHERE browser_id=%s AND item_key=%s`, s.ph(1), s.ph(2)),
		browserID, key,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *SQLStore) GetAll(ctx context.Context, browserID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT item_key,item_value FROM session_values WHERE browser_id=%s`, s.ph(1)),
		browserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLStore) SetMany(ctx context.Context, browserID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	updateQ := fmt.Sprintf(`UPDATE session_values SET item_value=%s, updated_at=%s WHERE browser_id=%s AND item_key=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	insertQ := fmt.Sprintf(`INSERT INTO session_values(browser_id,item_key,item_value,updated_at) VALUES(%s,%s,%s,%s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	for k, v := range values {
		res, err := tx.ExecContext(ctx, updateQ, v, now, browserID, k)
		if err != nil {
			return fmt.Errorf("update %s: %w", k, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, insertQ, browserID, k, v, now); err != nil {
			if !isDuplicateErr(err) {
				return fmt.Errorf("insert %s: %w", k, err)
			}
			// mysql reports zero affected rows when the value is unchanged.
			if _, err := tx.ExecContext(ctx, updateQ, v, now, browserID, k); err != nil {
				return fmt.Errorf("update %s: %w", k, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Clear(ctx context.Context, browserID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM session_values WHERE browser_id=%s`, s.ph(1)),
		browserID,
	)
	return err
}

// CleanupIdleBefore drops every browser whose values were last written before the cutoff.
func (s *SQLStore) CleanupIdleBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM session_values WHERE browser_id IN (SELECT browser_id FROM (SELECT browser_id, MAX(updated_at) AS last_write FROM session_values GROUP BY browser_id) idle WHERE last_write < %s)`, s.ph(1)),
		before.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) ph(i int) string {
	d := strings.ToLower(s.driver)
	if strings.Contains(d, "pgx") || strings.Contains(d, "postgres") {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func isDuplicateErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
