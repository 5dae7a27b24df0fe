// Package address validates Solana account addresses.
package address

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/go-playground/validator/v10"
	"github.com/mr-tron/base58"
)

// Tag is the validator tag registered by RegisterValidation.
const Tag = "solana_address"

// ErrInvalidAddress is returned when a string is not a base58 encoded 32-byte key.
var ErrInvalidAddress = errors.New("invalid solana address")

// Decode parses a base58 address into its 32 raw bytes.
func Decode(s string) ([]byte, error) {
	if len(s) < 32 || len(s) > 44 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(s))
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: decoded to %d bytes", ErrInvalidAddress, len(raw))
	}
	return raw, nil
}

// Validate reports whether s is a well-formed address.
func Validate(s string) error {
	_, err := Decode(s)
	return err
}

// IsOnCurve reports whether the key is a valid ed25519 point. Wallets are on the
// curve; program derived addresses are not.
func IsOnCurve(key []byte) bool {
	if len(key) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// IsWallet reports whether s decodes to an on-curve key.
func IsWallet(s string) bool {
	raw, err := Decode(s)
	if err != nil {
		return false
	}
	return IsOnCurve(raw)
}

// RegisterValidation installs the solana_address tag on v.
func RegisterValidation(v *validator.Validate) error {
	return v.RegisterValidation(Tag, func(fl validator.FieldLevel) bool {
		return Validate(fl.Field().String()) == nil
	})
}
