// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the SQLite connection pool behind chatgate's
// local thread store.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool, applies a fixed set
// of pragmas to every connection, and runs an optional schema script
// so that tables exist before the first query. Connections are not safe
// for concurrent use: each goroutine takes its own, or uses [Pool.With]
// which returns the connection when the callback finishes.
//
// # Pragmas
//
//   - journal_mode=WAL: handshake lookups read concurrently while an
//     operator seeds or archives threads.
//   - synchronous=NORMAL: survives process crashes without an fsync
//     per commit.
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - foreign_keys=ON: participants reference their thread and are
//     removed with it.
//   - temp_store=MEMORY.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/chatgate/threads.db",
//	    Schema: schema,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.With(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "SELECT ...", &sqlitex.ExecOptions{...})
//	})
package sqlitepool
