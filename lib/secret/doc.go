// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// [Buffer] allocates memory via mmap(MAP_ANONYMOUS), locks it into
// physical RAM via mlock, and marks it excluded from core dumps via
// madvise(MADV_DONTDUMP). On Close the memory is zeroed, unlocked, and
// unmapped. The garbage collector never sees the region, so it cannot
// leave copies of the secret behind.
//
// chatgate keeps HMAC token secrets in a Buffer for the life of the
// process. [ReadFile] loads one from a key file; [NewFromBytes] takes
// one from configuration and zeros the source slice.
//
// Depends on golang.org/x/sys/unix.
package secret
