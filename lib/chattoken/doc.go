// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chattoken validates the bearer credentials presented by chat
// clients when they open a gateway connection.
//
// Credentials are JWTs issued by an external identity provider. The
// gateway never mints them in production; [Mint] exists for the
// development CLI and for tests. A credential is accepted only when:
//
//   - its signature verifies under the configured algorithm and key
//     (an HMAC secret, or an RSA, ECDSA, or Ed25519 public key);
//   - it carries the sub (user), tid (tenant), and exp claims;
//   - exp is strictly after now (no skew is granted on expiry);
//   - nbf, when present, is not later than now plus the skew tolerance;
//   - iss and aud match the configured values, when configured;
//   - neither its fingerprint nor its jti is in the revocation set.
//
// Every rejection is a [*Failure] with a [FailureKind]. The gateway
// logs the kind and maps all of them to the same close code, so a
// client cannot probe which check failed.
//
// # Fingerprints
//
// A credential's fingerprint is the hex BLAKE3-256 digest of its raw
// bytes. Operators revoke a leaked credential by fingerprint without
// ever storing the credential itself, or revoke by jti when the issuer
// assigns one.
package chattoken
