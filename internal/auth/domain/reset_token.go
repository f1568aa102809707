package domain

import "time"

// ResetTokenStatus is the stored lifecycle state of a password reset token.
// Expiry is derived from ExpiresAt at read time rather than written eagerly,
// so there is no EXPIRED status.
type ResetTokenStatus string

const (
	ResetTokenPending   ResetTokenStatus = "PENDING"
	ResetTokenUsed      ResetTokenStatus = "USED"
	ResetTokenCancelled ResetTokenStatus = "CANCELLED"
)

// PasswordResetToken is a single-use recovery credential. At most one
// PENDING token exists per user; creating a new one cancels the rest.
type PasswordResetToken struct {
	ID        string
	Token     string
	UserID    string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	Status    ResetTokenStatus
}

func (t PasswordResetToken) IsUsed() bool {
	return t.Status == ResetTokenUsed || t.UsedAt != nil
}

func (t PasswordResetToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Consumable reports whether the token may still be redeemed.
func (t PasswordResetToken) Consumable(now time.Time) bool {
	return t.Status == ResetTokenPending && !t.IsUsed() && !t.IsExpired(now)
}
