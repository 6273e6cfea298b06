// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threadstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document accepted by LoadSeed:
//
//	threads:
//	  - id: 6f1c2a8e-3b7d-4c55-9a0e-1d2b3c4d5e6f
//	    tenant: tenant-a
//	    archived: false
//	    participants: [alice, bob]
type Seed struct {
	Threads []SeedThread `yaml:"threads"`
}

// SeedThread is one thread in a Seed.
type SeedThread struct {
	ID           string   `yaml:"id"`
	Tenant       string   `yaml:"tenant"`
	Archived     bool     `yaml:"archived"`
	Participants []string `yaml:"participants"`
}

// LoadSeed reads a seed file and applies it to writer. Threads that
// already exist keep their tenant but have their archived flag and
// participants brought in line with the file, so a seed can be applied
// on every start.
func LoadSeed(ctx context.Context, path string, writer Writer, now time.Time) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("threadstore: reading seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("threadstore: parsing seed %s: %w", path, err)
	}
	return Apply(ctx, writer, seed, now)
}

// Apply writes seed to writer and returns the number of threads
// applied.
func Apply(ctx context.Context, writer Writer, seed Seed, now time.Time) (int, error) {
	for i, entry := range seed.Threads {
		if entry.ID == "" || entry.Tenant == "" {
			return i, fmt.Errorf("threadstore: seed thread %d: id and tenant are required", i)
		}
		err := writer.CreateThread(ctx, Thread{
			ID:        entry.ID,
			TenantID:  entry.Tenant,
			Archived:  entry.Archived,
			CreatedAt: now,
		})
		if err != nil && !errors.Is(err, ErrExists) {
			return i, err
		}
		if errors.Is(err, ErrExists) {
			if err := writer.SetArchived(ctx, entry.ID, entry.Archived); err != nil {
				return i, err
			}
		}
		for _, userID := range entry.Participants {
			if err := writer.AddParticipant(ctx, entry.ID, userID, now); err != nil {
				return i, err
			}
		}
	}
	return len(seed.Threads), nil
}
