// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threadstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the tables the Postgres backend reads. It is
// applied by EnsureSchema for development databases; production
// schemas are owned by the messaging service.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id  UUID PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	archived   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS threads_tenant_thread
	ON threads (tenant_id, thread_id);

CREATE TABLE IF NOT EXISTS participants (
	thread_id UUID NOT NULL REFERENCES threads (thread_id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (thread_id, user_id)
);
`

// Postgres error codes the store distinguishes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("threadstore: connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("threadstore: pinging postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema applies PostgresSchema.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("threadstore: applying postgres schema: %w", err)
	}
	return nil
}

func (p *Postgres) LookupThread(ctx context.Context, tenantID, threadID string) (Thread, error) {
	var thread Thread
	err := p.pool.QueryRow(ctx, `
		SELECT thread_id::text, tenant_id, archived, created_at
		FROM threads WHERE tenant_id = $1 AND thread_id = $2::uuid
	`, tenantID, threadID).Scan(
		&thread.ID,
		&thread.TenantID,
		&thread.Archived,
		&thread.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, ErrNotFound
	}
	if err != nil {
		return Thread{}, fmt.Errorf("threadstore: looking up thread %s: %w", threadID, err)
	}
	return thread, nil
}

func (p *Postgres) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM participants WHERE thread_id = $1::uuid AND user_id = $2
		)
	`, threadID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("threadstore: checking participant %s in %s: %w", userID, threadID, err)
	}
	return exists, nil
}

func (p *Postgres) CreateThread(ctx context.Context, thread Thread) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO threads (thread_id, tenant_id, archived, created_at)
		VALUES ($1::uuid, $2, $3, $4)
	`, thread.ID, thread.TenantID, thread.Archived, thread.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("threadstore: creating thread %s: %w", thread.ID, err)
	}
	return nil
}

func (p *Postgres) AddParticipant(ctx context.Context, threadID, userID string, joinedAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO participants (thread_id, user_id, joined_at)
		VALUES ($1::uuid, $2, $3)
		ON CONFLICT (thread_id, user_id) DO NOTHING
	`, threadID, userID, joinedAt)
	if pgCode(err) == pgForeignKeyViolation {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("threadstore: adding participant %s to %s: %w", userID, threadID, err)
	}
	return nil
}

func (p *Postgres) SetArchived(ctx context.Context, threadID string, archived bool) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE threads SET archived = $2 WHERE thread_id = $1::uuid
	`, threadID, archived)
	if err != nil {
		return fmt.Errorf("threadstore: archiving %s: %w", threadID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
