// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chatgate-mint signs development chat credentials. Production
// credentials come from the identity provider; this exists so a local
// gateway can be exercised with curl, websocat, or a browser.
//
//	chatgate-mint --secret-file secret --user user-42 --tenant tenant-a
//	chatgate-mint --algorithm EdDSA --key-file ed25519.pem --user u --tenant t --ttl 1h
//
// The credential is printed to stdout. With --fingerprint the BLAKE3
// fingerprint used for revocation is printed on a second line.
package main
