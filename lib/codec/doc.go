// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds chatgate's CBOR configuration.
//
// Client frames are JSON because browsers speak it. Operator-facing
// signed envelopes (revocation pushes) are CBOR: the signature covers
// exact payload bytes, so the encoding must be deterministic, and CBOR
// Core Deterministic Encoding (RFC 8949 §4.2) guarantees that the same
// value always produces the same bytes.
//
//	data, err := codec.Marshal(request)
//	err = codec.Unmarshal(data, &request)
package codec
