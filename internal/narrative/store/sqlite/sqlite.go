// Package sqlite provides a SQLite-backed StateStore, grounded on the
// teacher's modernc.org/sqlite store: WAL mode, busy-timeout DSN params,
// and sqlite3-code based error classification, without its hash-chain,
// signing, or outbox machinery (§9A of the expanded spec licenses that
// simplification -- turns are human-paced, so no projection-apply queue
// is needed).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/narrative-engine/internal/platform/errors"
	"github.com/louisbranch/narrative-engine/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/narrative/store"
	"github.com/louisbranch/narrative-engine/internal/narrative/store/sqlite/migrations"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed store.StateStore.
type Store struct {
	sqlDB *sql.DB
}

var _ store.StateStore = (*Store)(nil)

// Open opens (creating if necessary) a SQLite database at path and runs
// embedded migrations against it. An empty path opens an in-process
// ":memory:" database, used by tests.
func Open(path string) (*Store, error) {
	dsn := path
	if strings.TrimSpace(path) == "" {
		dsn = ":memory:"
	} else {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetState returns the current state for storyID, or store.ErrNotFound.
func (s *Store) GetState(ctx context.Context, storyID string) (*domain.CanonicalState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stateJSON string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT state_json FROM state WHERE story_id = ?`, storyID)
	if err := row.Scan(&stateJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get state: %w", err)
	}

	var state domain.CanonicalState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCorruption, "decode stored state", err)
	}
	return &state, nil
}

// SaveState replaces the state record for its story_id.
func (s *Store) SaveState(ctx context.Context, state *domain.CanonicalState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.saveState(ctx, s.sqlDB, state)
}

func (s *Store) saveState(ctx context.Context, exec execer, state *domain.CanonicalState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
INSERT INTO state (story_id, state_json, turn, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (story_id) DO UPDATE SET
	state_json = excluded.state_json,
	turn = excluded.turn,
	updated_at = excluded.updated_at
`, state.Meta.StoryID, string(payload), state.Meta.Turn, toMillis(state.Meta.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// CommitTurn persists state and appends events as one atomic transaction.
func (s *Store) CommitTurn(ctx context.Context, state *domain.CanonicalState, events []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.saveState(ctx, tx, state); err != nil {
		return err
	}

	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", evt.EventID, err)
		}

		createdAt := evt.CreatedAt
		if createdAt.IsZero() {
			createdAt = state.Meta.UpdatedAt
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO events (event_id, story_id, turn, time_order, event_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, evt.EventID, evt.StoryID, evt.Turn, evt.Time.Order, string(payload), toMillis(createdAt))
		if err != nil {
			if isConstraintError(err) {
				return store.ErrDuplicateEventID
			}
			return fmt.Errorf("append event %s: %w", evt.EventID, err)
		}
	}

	return tx.Commit()
}

// GetEvent returns a single event by id, or store.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var eventJSON string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT event_json FROM events WHERE event_id = ?`, eventID)
	if err := row.Scan(&eventJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	return decodeEvent(eventJSON)
}

// ListEventsByTurn returns a story's events for one turn ordered by
// time.order ascending.
func (s *Store) ListEventsByTurn(ctx context.Context, storyID string, turn int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_json FROM events
WHERE story_id = ? AND turn = ?
ORDER BY time_order ASC
`, storyID, turn)
	if err != nil {
		return nil, fmt.Errorf("list events by turn: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListEventsByTimeRange returns events with time.order within
// [minOrder, maxOrder], ordered ascending. A nil bound is open.
func (s *Store) ListEventsByTimeRange(ctx context.Context, storyID string, minOrder, maxOrder *int64) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := strings.Builder{}
	query.WriteString(`SELECT event_json FROM events WHERE story_id = ?`)
	args := []any{storyID}
	if minOrder != nil {
		query.WriteString(` AND time_order >= ?`)
		args = append(args, *minOrder)
	}
	if maxOrder != nil {
		query.WriteString(` AND time_order <= ?`)
		args = append(args, *maxOrder)
	}
	query.WriteString(` ORDER BY time_order ASC`)

	rows, err := s.sqlDB.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecentEvents returns up to limit events starting at offset, ordered
// by time.order descending.
func (s *Store) ListRecentEvents(ctx context.Context, storyID string, limit, offset int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_json FROM events
WHERE story_id = ?
ORDER BY time_order DESC
LIMIT ? OFFSET ?
`, storyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var out []domain.Event
	for rows.Next() {
		var eventJSON string
		if err := rows.Scan(&eventJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt, err := decodeEvent(eventJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, *evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func decodeEvent(eventJSON string) (*domain.Event, error) {
	var evt domain.Event
	if err := json.Unmarshal([]byte(eventJSON), &evt); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCorruption, "decode stored event", err)
	}
	return &evt, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting saveState run
// either standalone or as part of CommitTurn's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
