// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/chatgate/lib/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize

// RequestEntry is one identifier in a signed revocation push.
type RequestEntry struct {
	// ID is a credential fingerprint or jti.
	ID string `cbor:"1,keyasint"`

	// ExpiresAt is the credential's natural expiry (Unix seconds), or
	// zero if unknown.
	ExpiresAt int64 `cbor:"2,keyasint,omitempty"`
}

// Request is the payload of a signed revocation push.
//
// Wire format: CBOR-encoded Request followed by a 64-byte Ed25519
// signature over those bytes. The split point is len(data) - 64.
type Request struct {
	Entries  []RequestEntry `cbor:"1,keyasint"`
	IssuedAt int64          `cbor:"2,keyasint"`
}

// Errors returned by VerifyRequest.
var (
	ErrRequestTooShort  = errors.New("revocation: request too short for signature")
	ErrRequestBadSig    = errors.New("revocation: invalid request signature")
	ErrRequestNoEntries = errors.New("revocation: request has no entries")
)

// SignRequest encodes and signs request.
func SignRequest(privateKey ed25519.PrivateKey, request *Request) ([]byte, error) {
	payload, err := codec.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("revocation: encoding request: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)
	return result, nil
}

// VerifyRequest checks the signature on data and decodes the request.
func VerifyRequest(publicKey ed25519.PublicKey, data []byte) (*Request, error) {
	if len(data) <= signatureSize {
		return nil, ErrRequestTooShort
	}

	splitPoint := len(data) - signatureSize
	payload := data[:splitPoint]
	signature := data[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrRequestBadSig
	}

	var request Request
	if err := codec.Unmarshal(payload, &request); err != nil {
		return nil, fmt.Errorf("revocation: decoding request: %w", err)
	}
	if len(request.Entries) == 0 {
		return nil, ErrRequestNoEntries
	}
	return &request, nil
}

// SetEntries converts the request's entries for Set.Add.
func (r *Request) SetEntries() []Entry {
	entries := make([]Entry, 0, len(r.Entries))
	for _, entry := range r.Entries {
		converted := Entry{ID: entry.ID}
		if entry.ExpiresAt > 0 {
			converted.ExpiresAt = time.Unix(entry.ExpiresAt, 0)
		}
		entries = append(entries, converted)
	}
	return entries
}
