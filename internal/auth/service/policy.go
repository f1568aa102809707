package service

import (
	"errors"
	"fmt"
	"unicode"
)

var ErrWeakPassword = errors.New("weak_password")

// PasswordPolicy gates every password accepted through reset or update. The
// directory may enforce its own policy on top; this one guarantees a floor
// before the credential ever leaves the service.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy requires 8+ characters with mixed case and a digit.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrWeakPassword, p.MinLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return fmt.Errorf("%w: missing uppercase character", ErrWeakPassword)
	case p.RequireLower && !lower:
		return fmt.Errorf("%w: missing lowercase character", ErrWeakPassword)
	case p.RequireDigit && !digit:
		return fmt.Errorf("%w: missing digit", ErrWeakPassword)
	case p.RequireSymbol && !symbol:
		return fmt.Errorf("%w: missing symbol", ErrWeakPassword)
	}
	return nil
}
