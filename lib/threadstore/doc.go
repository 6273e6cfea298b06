// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package threadstore holds the thread and participant records the
// access oracle consults during a handshake.
//
// The gateway only reads: [Reader.LookupThread] scoped by tenant and
// [Reader.IsParticipant]. The write half ([Writer]) exists for
// development seeding and tests; in production the rows are owned by
// the messaging service and the gateway reads a shared database.
//
// Three backends implement [Store]:
//
//   - [SQLite], on lib/sqlitepool, with a bootstrap schema applied on
//     every connection.
//   - [Postgres], on a pgx connection pool, expecting the same two
//     tables.
//   - [Memory], for tests and single-process demos.
//
// Both SQL schemas index threads by (tenant_id, thread_id) and
// participants by (thread_id, user_id), the two handshake lookups.
package threadstore
