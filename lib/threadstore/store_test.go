// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threadstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	threadID := uuid.NewString()

	if err := store.CreateThread(ctx, Thread{ID: threadID, TenantID: "tenant-a", CreatedAt: testEpoch}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := store.CreateThread(ctx, Thread{ID: threadID, TenantID: "tenant-a", CreatedAt: testEpoch}); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate CreateThread: got %v, want ErrExists", err)
	}

	thread, err := store.LookupThread(ctx, "tenant-a", threadID)
	if err != nil {
		t.Fatalf("LookupThread: %v", err)
	}
	if thread.ID != threadID || thread.TenantID != "tenant-a" || thread.Archived {
		t.Errorf("LookupThread = %+v", thread)
	}
	if !thread.CreatedAt.Equal(testEpoch) {
		t.Errorf("CreatedAt = %v, want %v", thread.CreatedAt, testEpoch)
	}

	if _, err := store.LookupThread(ctx, "tenant-b", threadID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign tenant lookup: got %v, want ErrNotFound", err)
	}
	if _, err := store.LookupThread(ctx, "tenant-a", uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown thread lookup: got %v, want ErrNotFound", err)
	}

	if err := store.AddParticipant(ctx, threadID, "alice", testEpoch); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := store.AddParticipant(ctx, threadID, "alice", testEpoch.Add(time.Hour)); err != nil {
		t.Errorf("repeated AddParticipant: %v", err)
	}
	if err := store.AddParticipant(ctx, uuid.NewString(), "alice", testEpoch); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddParticipant to unknown thread: got %v, want ErrNotFound", err)
	}

	member, err := store.IsParticipant(ctx, threadID, "alice")
	if err != nil {
		t.Fatalf("IsParticipant: %v", err)
	}
	if !member {
		t.Error("alice should be a participant")
	}
	member, err = store.IsParticipant(ctx, threadID, "mallory")
	if err != nil {
		t.Fatalf("IsParticipant: %v", err)
	}
	if member {
		t.Error("mallory should not be a participant")
	}

	if err := store.SetArchived(ctx, threadID, true); err != nil {
		t.Fatalf("SetArchived: %v", err)
	}
	thread, err = store.LookupThread(ctx, "tenant-a", threadID)
	if err != nil {
		t.Fatalf("LookupThread after archive: %v", err)
	}
	if !thread.Archived {
		t.Error("thread not archived")
	}
	if err := store.SetArchived(ctx, uuid.NewString(), true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetArchived unknown thread: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "threads.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	exerciseStore(t, store)
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.db")
	threadID := uuid.NewString()
	ctx := context.Background()

	first, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := first.CreateThread(ctx, Thread{ID: threadID, TenantID: "tenant-a", CreatedAt: testEpoch}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, err := second.LookupThread(ctx, "tenant-a", threadID); err != nil {
		t.Fatalf("LookupThread after reopen: %v", err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHATGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATGATE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	exerciseStore(t, store)
}

func TestLoadSeed(t *testing.T) {
	activeID := uuid.NewString()
	archivedID := uuid.NewString()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := "threads:\n" +
		"  - id: " + activeID + "\n" +
		"    tenant: tenant-a\n" +
		"    participants: [alice, bob]\n" +
		"  - id: " + archivedID + "\n" +
		"    tenant: tenant-a\n" +
		"    archived: true\n" +
		"    participants: [alice]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := NewMemory()
	ctx := context.Background()
	count, err := LoadSeed(ctx, path, store, testEpoch)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if count != 2 {
		t.Errorf("LoadSeed count = %d, want 2", count)
	}

	// Applying the same seed again is harmless.
	if _, err := LoadSeed(ctx, path, store, testEpoch); err != nil {
		t.Fatalf("second LoadSeed: %v", err)
	}

	member, err := store.IsParticipant(ctx, activeID, "bob")
	if err != nil || !member {
		t.Errorf("IsParticipant(bob) = %v, %v; want true", member, err)
	}
	thread, err := store.LookupThread(ctx, "tenant-a", archivedID)
	if err != nil {
		t.Fatalf("LookupThread: %v", err)
	}
	if !thread.Archived {
		t.Error("seeded thread should be archived")
	}
}

func TestApplyRejectsIncompleteThread(t *testing.T) {
	_, err := Apply(context.Background(), NewMemory(), Seed{Threads: []SeedThread{{ID: uuid.NewString()}}}, testEpoch)
	if err == nil {
		t.Fatal("Apply accepted a thread without a tenant")
	}
}
