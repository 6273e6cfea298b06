// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package revocation maintains the set of revoked credential
// identifiers consulted by the token validator.
//
// An identifier is either a credential fingerprint (hex BLAKE3-256 of
// the raw credential) or a jti claim. The [Set] is read on every
// handshake and written rarely, so reads are lock-free against an
// immutable snapshot and every write publishes a new snapshot with a
// single atomic pointer store.
//
// Entries arrive from independent sources, each owning one named layer
// of the set:
//
//   - [FileSource] mirrors a YAML file, reloading it when fsnotify
//     reports a change.
//   - [RedisSource] mirrors a Redis set, polling it on an interval.
//   - Signed pushes ([SignRequest], [VerifyRequest]) add entries to the
//     "push" layer through the gateway's admin endpoint.
//
// Replacing one layer never disturbs another: a file reload does not
// forget an emergency push.
//
// Entries carry the credential's natural expiry. Once that passes, the
// credential is rejected as expired anyway, so [Set.Cleanup] drops the
// entry.
package revocation
