// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chattoken

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zeebo/blake3"
)

// Claims is the JWT payload a chat credential carries. Subject is the
// user id; TenantID is the tenant the user acts within.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tid,omitempty"`
}

// Principal is the identity of an authenticated caller. It lives for
// the duration of one connection and is never persisted.
type Principal struct {
	UserID    string
	TenantID  string
	ExpiresAt time.Time

	// Fingerprint is the hex BLAKE3-256 digest of the raw credential.
	Fingerprint string

	// TokenID is the jti claim, empty when the issuer did not set one.
	TokenID string
}

// Fingerprint returns the revocation fingerprint of a raw credential.
func Fingerprint(credential string) string {
	sum := blake3.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Mint signs claims with algorithm and key. Production credentials come
// from the identity provider; this is for the development CLI and
// tests.
func Mint(algorithm string, key any, claims Claims) (string, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return "", fmt.Errorf("chattoken: unknown algorithm %q", algorithm)
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("chattoken: signing: %w", err)
	}
	return signed, nil
}
