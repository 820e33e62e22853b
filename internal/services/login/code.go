// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package login

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultCodeLength is the number of digits in a code.
const DefaultCodeLength = 6

const digits = "0123456789"

// GenerateCode returns a uniformly random numeric code of the given length.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	base := big.NewInt(int64(len(digits)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("reading random digit: %w", err)
		}
		code[i] = digits[n.Int64()]
	}

	return string(code), nil
}
