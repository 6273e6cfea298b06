// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threadstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/chatgate/lib/sqlitepool"
)

// sqliteSchema is the development bootstrap schema. Timestamps are
// Unix milliseconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id  TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	archived   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS threads_tenant_thread
	ON threads (tenant_id, thread_id);

CREATE TABLE IF NOT EXISTS participants (
	thread_id TEXT NOT NULL REFERENCES threads (thread_id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL,
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (thread_id, user_id)
);
`

// SQLiteConfig configures a SQLite store.
type SQLiteConfig struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// SQLite is a Store backed by a local SQLite database.
type SQLite struct {
	pool *sqlitepool.Pool
}

// OpenSQLite opens (creating if needed) the database at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Schema:   sqliteSchema,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("threadstore: %w", err)
	}
	return &SQLite{pool: pool}, nil
}

func (s *SQLite) LookupThread(ctx context.Context, tenantID, threadID string) (Thread, error) {
	var (
		thread Thread
		found  bool
	)
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT thread_id, tenant_id, archived, created_at
			FROM threads WHERE tenant_id = ? AND thread_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{tenantID, threadID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					thread = Thread{
						ID:        stmt.ColumnText(0),
						TenantID:  stmt.ColumnText(1),
						Archived:  stmt.ColumnInt64(2) != 0,
						CreatedAt: time.UnixMilli(stmt.ColumnInt64(3)).UTC(),
					}
					return nil
				},
			})
	})
	if err != nil {
		return Thread{}, fmt.Errorf("threadstore: looking up thread %s: %w", threadID, err)
	}
	if !found {
		return Thread{}, ErrNotFound
	}
	return thread, nil
}

func (s *SQLite) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	var found bool
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT 1 FROM participants WHERE thread_id = ? AND user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{threadID, userID},
				ResultFunc: func(*sqlite.Stmt) error {
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return false, fmt.Errorf("threadstore: checking participant %s in %s: %w", userID, threadID, err)
	}
	return found, nil
}

func (s *SQLite) CreateThread(ctx context.Context, thread Thread) error {
	return s.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO threads (thread_id, tenant_id, archived, created_at)
			VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{thread.ID, thread.TenantID, boolInt(thread.Archived), thread.CreatedAt.UnixMilli()},
			})
		if code := sqlite.ErrCode(err); code == sqlite.ResultConstraintPrimaryKey || code == sqlite.ResultConstraintUnique {
			return ErrExists
		}
		if err != nil {
			return fmt.Errorf("threadstore: creating thread %s: %w", thread.ID, err)
		}
		return nil
	})
}

func (s *SQLite) AddParticipant(ctx context.Context, threadID, userID string, joinedAt time.Time) error {
	return s.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO participants (thread_id, user_id, joined_at)
			VALUES (?, ?, ?)
			ON CONFLICT (thread_id, user_id) DO NOTHING`,
			&sqlitex.ExecOptions{Args: []any{threadID, userID, joinedAt.UnixMilli()}})
		if sqlite.ErrCode(err) == sqlite.ResultConstraintForeignKey {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("threadstore: adding participant %s to %s: %w", userID, threadID, err)
		}
		return nil
	})
}

func (s *SQLite) SetArchived(ctx context.Context, threadID string, archived bool) error {
	return s.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `UPDATE threads SET archived = ? WHERE thread_id = ?`,
			&sqlitex.ExecOptions{Args: []any{boolInt(archived), threadID}})
		if err != nil {
			return fmt.Errorf("threadstore: archiving %s: %w", threadID, err)
		}
		if conn.Changes() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Close closes the connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
