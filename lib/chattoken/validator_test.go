// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chattoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bureau-foundation/chatgate/lib/clock"
)

var (
	testEpoch  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testSecret = []byte("0123456789abcdef0123456789abcdef")
)

type revokedSet map[string]bool

func (s revokedSet) IsRevoked(id string) bool { return s[id] }

func baseClaims(now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "idp.example",
			Audience:  jwt.ClaimStrings{"chat"},
			ExpiresAt: jwt.NewNumericDate(now.Add(300 * time.Second)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        "jti-1",
		},
		TenantID: "tenant-a",
	}
}

func newHMACValidator(t *testing.T, fake *clock.FakeClock, revocations RevocationChecker) *Validator {
	t.Helper()
	validator, err := NewValidator(Config{
		Algorithm:   "HS256",
		Key:         testSecret,
		Issuer:      "idp.example",
		Audience:    "chat",
		Revocations: revocations,
		Clock:       fake,
	})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return validator
}

func mintHMAC(t *testing.T, claims Claims) string {
	t.Helper()
	credential, err := Mint("HS256", testSecret, claims)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return credential
}

func TestValidateAcceptsValidCredential(t *testing.T) {
	fake := clock.Fake(testEpoch)
	validator := newHMACValidator(t, fake, nil)
	credential := mintHMAC(t, baseClaims(testEpoch))

	principal, err := validator.Validate(credential)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if principal.UserID != "user-42" {
		t.Errorf("UserID = %q, want user-42", principal.UserID)
	}
	if principal.TenantID != "tenant-a" {
		t.Errorf("TenantID = %q, want tenant-a", principal.TenantID)
	}
	if principal.TokenID != "jti-1" {
		t.Errorf("TokenID = %q, want jti-1", principal.TokenID)
	}
	if !principal.ExpiresAt.Equal(testEpoch.Add(300 * time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", principal.ExpiresAt, testEpoch.Add(300*time.Second))
	}
	if principal.Fingerprint != Fingerprint(credential) || len(principal.Fingerprint) != 64 {
		t.Errorf("Fingerprint = %q, want 64 hex chars matching Fingerprint()", principal.Fingerprint)
	}
}

func TestValidateFailureKinds(t *testing.T) {
	otherSecret := []byte("ffffffffffffffffffffffffffffffff")

	tests := []struct {
		name       string
		credential func() string
		revoked    revokedSet
		want       FailureKind
	}{
		{
			name:       "missing",
			credential: func() string { return "" },
			want:       FailureMissing,
		},
		{
			name:       "malformed",
			credential: func() string { return "not-a-jwt" },
			want:       FailureMalformed,
		},
		{
			name: "bad signature",
			credential: func() string {
				signed, _ := Mint("HS256", otherSecret, baseClaims(testEpoch))
				return signed
			},
			want: FailureBadSignature,
		},
		{
			name: "wrong algorithm",
			credential: func() string {
				signed, _ := Mint("HS512", testSecret, baseClaims(testEpoch))
				return signed
			},
			want: FailureBadSignature,
		},
		{
			name: "expired",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.ExpiresAt = jwt.NewNumericDate(testEpoch.Add(-time.Second))
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureExpired,
		},
		{
			name: "expires exactly now",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.ExpiresAt = jwt.NewNumericDate(testEpoch)
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureExpired,
		},
		{
			name: "not yet valid beyond skew",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.NotBefore = jwt.NewNumericDate(testEpoch.Add(31 * time.Second))
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureNotYetValid,
		},
		{
			name: "missing sub",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.Subject = ""
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureMissingClaim,
		},
		{
			name: "missing tid",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.TenantID = ""
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureMissingClaim,
		},
		{
			name: "missing exp",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.ExpiresAt = nil
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureMissingClaim,
		},
		{
			name: "wrong issuer",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.Issuer = "elsewhere"
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureWrongIssuer,
		},
		{
			name: "wrong audience",
			credential: func() string {
				claims := baseClaims(testEpoch)
				claims.Audience = jwt.ClaimStrings{"billing"}
				signed, _ := Mint("HS256", testSecret, claims)
				return signed
			},
			want: FailureWrongAudience,
		},
		{
			name:       "revoked by jti",
			credential: func() string { return mintHMAC(t, baseClaims(testEpoch)) },
			revoked:    revokedSet{"jti-1": true},
			want:       FailureRevoked,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			validator := newHMACValidator(t, clock.Fake(testEpoch), test.revoked)
			_, err := validator.Validate(test.credential())
			if err == nil {
				t.Fatal("Validate accepted the credential")
			}
			if kind := KindOf(err); kind != test.want {
				t.Errorf("KindOf(err) = %q, want %q (err: %v)", kind, test.want, err)
			}
			if !errors.Is(err, &Failure{Kind: test.want}) {
				t.Errorf("errors.Is(err, Failure{%s}) = false", test.want)
			}
		})
	}
}

func TestValidateRevokedByFingerprint(t *testing.T) {
	credential := mintHMAC(t, baseClaims(testEpoch))
	validator := newHMACValidator(t, clock.Fake(testEpoch), revokedSet{Fingerprint(credential): true})

	_, err := validator.Validate(credential)
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("Validate: got %v, want ErrRevoked", err)
	}
}

func TestValidateNotBeforeWithinSkew(t *testing.T) {
	claims := baseClaims(testEpoch)
	claims.NotBefore = jwt.NewNumericDate(testEpoch.Add(30 * time.Second))
	credential := mintHMAC(t, claims)

	validator := newHMACValidator(t, clock.Fake(testEpoch), nil)
	if _, err := validator.Validate(credential); err != nil {
		t.Fatalf("Validate with nbf inside skew: %v", err)
	}
}

func TestValidateExpiryTracksClock(t *testing.T) {
	fake := clock.Fake(testEpoch)
	validator := newHMACValidator(t, fake, nil)
	credential := mintHMAC(t, baseClaims(testEpoch))

	fake.Advance(299 * time.Second)
	if _, err := validator.Validate(credential); err != nil {
		t.Fatalf("Validate one second before expiry: %v", err)
	}
	fake.Advance(time.Second)
	if _, err := validator.Validate(credential); !errors.Is(err, ErrExpired) {
		t.Fatalf("Validate at expiry: got %v, want ErrExpired", err)
	}
}

func TestValidateEd25519PublicKey(t *testing.T) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	key, err := ParseVerificationKey("EdDSA", publicPEM)
	if err != nil {
		t.Fatalf("ParseVerificationKey: %v", err)
	}
	validator, err := NewValidator(Config{Algorithm: "EdDSA", Key: key, Clock: clock.Fake(testEpoch)})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	credential, err := Mint("EdDSA", private, baseClaims(testEpoch))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	principal, err := validator.Validate(credential)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if principal.UserID != "user-42" {
		t.Errorf("UserID = %q, want user-42", principal.UserID)
	}

	// Flip a signature character: same structure, broken signature.
	tampered := []byte(credential)
	last := len(tampered) - 2
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}
	if _, err := validator.Validate(string(tampered)); KindOf(err) != FailureBadSignature {
		t.Errorf("tampered credential: KindOf = %q, want bad_signature (err: %v)", KindOf(err), err)
	}
}

func TestParseVerificationKeyRejectsShortSecret(t *testing.T) {
	_, err := ParseVerificationKey("HS256", []byte("short"))
	if err == nil || !strings.Contains(err.Error(), "at least 32") {
		t.Fatalf("ParseVerificationKey short secret: got %v", err)
	}
}

func TestNewValidatorRequiresKey(t *testing.T) {
	if _, err := NewValidator(Config{Algorithm: "HS256"}); err == nil {
		t.Fatal("NewValidator without key succeeded")
	}
	if _, err := NewValidator(Config{Algorithm: "none-such", Key: testSecret}); err == nil {
		t.Fatal("NewValidator with unknown algorithm succeeded")
	}
}
