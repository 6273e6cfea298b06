// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chattoken

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// keyFamily groups JWT algorithms by the kind of key they need.
type keyFamily int

const (
	familyHMAC keyFamily = iota
	familyRSA
	familyECDSA
	familyEd25519
)

func familyOf(algorithm string) (keyFamily, error) {
	switch {
	case strings.HasPrefix(algorithm, "HS"):
		return familyHMAC, nil
	case strings.HasPrefix(algorithm, "RS"), strings.HasPrefix(algorithm, "PS"):
		return familyRSA, nil
	case strings.HasPrefix(algorithm, "ES"):
		return familyECDSA, nil
	case algorithm == "EdDSA":
		return familyEd25519, nil
	}
	return 0, fmt.Errorf("chattoken: unsupported algorithm %q", algorithm)
}

// ParseVerificationKey turns configured key material into the key type
// golang-jwt expects for algorithm: the raw bytes for HMAC, or a
// PEM-encoded public key for RSA, ECDSA, and Ed25519.
func ParseVerificationKey(algorithm string, material []byte) (any, error) {
	if jwt.GetSigningMethod(algorithm) == nil {
		return nil, fmt.Errorf("chattoken: unknown algorithm %q", algorithm)
	}
	family, err := familyOf(algorithm)
	if err != nil {
		return nil, err
	}
	if len(material) == 0 {
		return nil, fmt.Errorf("chattoken: no key material for %s", algorithm)
	}

	var key any
	switch family {
	case familyHMAC:
		if len(material) < 32 {
			return nil, fmt.Errorf("chattoken: %s secret has %d bytes, want at least 32", algorithm, len(material))
		}
		key = material
	case familyRSA:
		key, err = jwt.ParseRSAPublicKeyFromPEM(material)
	case familyECDSA:
		key, err = jwt.ParseECPublicKeyFromPEM(material)
	case familyEd25519:
		key, err = jwt.ParseEdPublicKeyFromPEM(material)
	}
	if err != nil {
		return nil, fmt.Errorf("chattoken: parsing %s public key: %w", algorithm, err)
	}
	return key, nil
}

// ParseSigningKey is the minting counterpart of ParseVerificationKey:
// the raw secret for HMAC, or a PEM-encoded private key otherwise.
func ParseSigningKey(algorithm string, material []byte) (any, error) {
	if jwt.GetSigningMethod(algorithm) == nil {
		return nil, fmt.Errorf("chattoken: unknown algorithm %q", algorithm)
	}
	family, err := familyOf(algorithm)
	if err != nil {
		return nil, err
	}

	var key any
	switch family {
	case familyHMAC:
		key = material
	case familyRSA:
		key, err = jwt.ParseRSAPrivateKeyFromPEM(material)
	case familyECDSA:
		key, err = jwt.ParseECPrivateKeyFromPEM(material)
	case familyEd25519:
		key, err = jwt.ParseEdPrivateKeyFromPEM(material)
	}
	if err != nil {
		return nil, fmt.Errorf("chattoken: parsing %s private key: %w", algorithm, err)
	}
	return key, nil
}
