// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chattoken

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bureau-foundation/chatgate/lib/clock"
)

// DefaultSkew is the clock-skew tolerance applied to nbf.
const DefaultSkew = 30 * time.Second

// RevocationChecker reports whether a fingerprint or token id has been
// revoked. *revocation.Set satisfies it.
type RevocationChecker interface {
	IsRevoked(id string) bool
}

// Config configures a Validator.
type Config struct {
	// Algorithm is the JWT "alg" every credential must use (HS256,
	// RS256, ES256, EdDSA, ...). Credentials signed with any other
	// algorithm are rejected as bad_signature. Required.
	Algorithm string

	// Key is the verification key, as returned by
	// ParseVerificationKey. Required.
	Key any

	// Issuer and Audience, when non-empty, must match the credential's
	// iss claim and be contained in its aud claim.
	Issuer   string
	Audience string

	// Skew is the tolerance applied to nbf. Zero means DefaultSkew;
	// negative means none.
	Skew time.Duration

	// Revocations is consulted after every other check. Nil disables
	// revocation checking.
	Revocations RevocationChecker

	// Clock supplies the validation instant. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives one debug record per rejection. Defaults to a
	// discarding logger.
	Logger *slog.Logger
}

// Validator verifies chat credentials. It is safe for concurrent use.
type Validator struct {
	parser      *jwt.Parser
	key         any
	issuer      string
	audience    string
	skew        time.Duration
	revocations RevocationChecker
	clock       clock.Clock
	logger      *slog.Logger
}

// NewValidator checks cfg and returns a Validator.
func NewValidator(cfg Config) (*Validator, error) {
	if cfg.Algorithm == "" {
		return nil, errors.New("chattoken: Algorithm is required")
	}
	if jwt.GetSigningMethod(cfg.Algorithm) == nil {
		return nil, fmt.Errorf("chattoken: unknown algorithm %q", cfg.Algorithm)
	}
	if cfg.Key == nil {
		return nil, errors.New("chattoken: Key is required")
	}

	skew := cfg.Skew
	switch {
	case skew == 0:
		skew = DefaultSkew
	case skew < 0:
		skew = 0
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Validator{
		// Time-based claims are checked by hand below: exp must be
		// strict while nbf gets the skew, which jwt's single leeway
		// option cannot express.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{cfg.Algorithm}),
			jwt.WithoutClaimsValidation(),
		),
		key:         cfg.Key,
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		skew:        skew,
		revocations: cfg.Revocations,
		clock:       clk,
		logger:      logger,
	}, nil
}

// Validate verifies credential and returns the caller's Principal. Any
// rejection is a *Failure.
func (v *Validator) Validate(credential string) (*Principal, error) {
	principal, err := v.validate(credential)
	if err != nil {
		v.logger.Debug("credential rejected", "kind", KindOf(err), "error", err)
		return nil, err
	}
	return principal, nil
}

func (v *Validator) validate(credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrMissing
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	switch {
	case claims.Subject == "":
		return nil, missingClaim("sub")
	case claims.TenantID == "":
		return nil, missingClaim("tid")
	case claims.ExpiresAt == nil:
		return nil, missingClaim("exp")
	}

	now := v.clock.Now()
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}
	if claims.NotBefore != nil && claims.NotBefore.Time.After(now.Add(v.skew)) {
		return nil, ErrNotYetValid
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrWrongIssuer
	}
	if v.audience != "" && !slices.Contains(claims.Audience, v.audience) {
		return nil, ErrWrongAudience
	}

	fingerprint := Fingerprint(credential)
	if v.revocations != nil {
		if v.revocations.IsRevoked(fingerprint) || (claims.ID != "" && v.revocations.IsRevoked(claims.ID)) {
			return nil, ErrRevoked
		}
	}

	return &Principal{
		UserID:      claims.Subject,
		TenantID:    claims.TenantID,
		ExpiresAt:   claims.ExpiresAt.Time,
		Fingerprint: fingerprint,
		TokenID:     claims.ID,
	}, nil
}

// classifyParseError maps golang-jwt's error tree onto failure kinds.
func classifyParseError(err error) *Failure {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fail(FailureMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fail(FailureBadSignature, err)
	default:
		return fail(FailureMalformed, err)
	}
}
