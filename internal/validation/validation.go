// Package validation provides input validation for permit queries.
package validation

import (
	"errors"
	"math/big"
	"strings"
)

// maxUint256 is the largest value a Permit2 nonce can take.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateNetworkID validates a chain ID
func ValidateNetworkID(id int64) error {
	if id <= 0 {
		return errors.New("network ID must be positive")
	}
	return nil
}

// ParseNonce parses a decimal Permit2 nonce and returns its canonical form.
func ParseNonce(s string) (string, error) {
	if s == "" {
		return "", errors.New("nonce is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", errors.New("nonce must be a decimal integer")
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "", errors.New("nonce must be a decimal integer")
	}
	if n.Cmp(maxUint256) > 0 {
		return "", errors.New("nonce exceeds uint256")
	}
	return n.String(), nil
}
