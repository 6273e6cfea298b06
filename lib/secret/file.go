// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// ReadFile loads a secret from path into a Buffer. Surrounding
// whitespace, including the trailing newline editors add, is trimmed.
// The heap copy read from disk is zeroed before returning.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	defer clear(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("secret: " + path + " is empty")
	}
	return NewFromBytes(trimmed)
}
