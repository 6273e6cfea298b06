// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chattoken

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a credential was rejected.
type FailureKind string

const (
	FailureMissing       FailureKind = "missing"
	FailureMalformed     FailureKind = "malformed"
	FailureBadSignature  FailureKind = "bad_signature"
	FailureExpired       FailureKind = "expired"
	FailureNotYetValid   FailureKind = "not_yet_valid"
	FailureRevoked       FailureKind = "revoked"
	FailureMissingClaim  FailureKind = "missing_claim"
	FailureWrongIssuer   FailureKind = "wrong_issuer"
	FailureWrongAudience FailureKind = "wrong_audience"
)

// Failure is the error returned by Validate for every rejected
// credential.
type Failure struct {
	Kind FailureKind

	// Claim names the absent claim for FailureMissingClaim.
	Claim string

	// Err is the underlying parser error, if any. It is for logs only.
	Err error
}

// Sentinels for errors.Is comparisons against a kind.
var (
	ErrMissing       = &Failure{Kind: FailureMissing}
	ErrMalformed     = &Failure{Kind: FailureMalformed}
	ErrBadSignature  = &Failure{Kind: FailureBadSignature}
	ErrExpired       = &Failure{Kind: FailureExpired}
	ErrNotYetValid   = &Failure{Kind: FailureNotYetValid}
	ErrRevoked       = &Failure{Kind: FailureRevoked}
	ErrMissingClaim  = &Failure{Kind: FailureMissingClaim}
	ErrWrongIssuer   = &Failure{Kind: FailureWrongIssuer}
	ErrWrongAudience = &Failure{Kind: FailureWrongAudience}
)

func (f *Failure) Error() string {
	message := "chattoken: " + string(f.Kind)
	if f.Claim != "" {
		message += fmt.Sprintf(" (%s)", f.Claim)
	}
	if f.Err != nil {
		message += ": " + f.Err.Error()
	}
	return message
}

func (f *Failure) Unwrap() error { return f.Err }

// Is reports whether target is a *Failure of the same kind.
func (f *Failure) Is(target error) bool {
	other, ok := target.(*Failure)
	return ok && other.Kind == f.Kind
}

// KindOf returns the FailureKind carried by err, or "" if err is not a
// validation failure.
func KindOf(err error) FailureKind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return ""
}

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

func missingClaim(claim string) *Failure {
	return &Failure{Kind: FailureMissingClaim, Claim: claim}
}
