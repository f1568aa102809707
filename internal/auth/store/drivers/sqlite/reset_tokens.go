package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
	"github.com/sentinelworks/gatekeeper/internal/auth/store"
)

type resetTokensRepo struct {
	db *sql.DB
}

var _ store.ResetTokens = (*resetTokensRepo)(nil)

func (r *resetTokensRepo) Create(ctx context.Context, t domain.PasswordResetToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens
			(id, token_hash, user_id, email, status, created_at, expires_at, used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Token,
		t.UserID,
		t.Email,
		string(t.Status),
		t.CreatedAt.UTC(),
		t.ExpiresAt.UTC(),
		mapOptionalTime(t.UsedAt),
	)
	return err
}

func (r *resetTokensRepo) GetByToken(ctx context.Context, token string) (domain.PasswordResetToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, email, status, created_at, expires_at, used_at
		FROM password_reset_tokens
		WHERE token_hash = ?`,
		token,
	)

	var (
		t      domain.PasswordResetToken
		status string
		usedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.Email, &status, &t.CreatedAt, &t.ExpiresAt, &usedAt)
	if err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}

	t.Status = domain.ResetTokenStatus(status)
	t.UsedAt = mapNullTimePtr(usedAt)
	return t, nil
}

func (r *resetTokensRepo) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE password_reset_tokens
		SET status = ?, used_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.ResetTokenUsed),
		usedAt.UTC(),
		id,
		string(domain.ResetTokenPending),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *resetTokensRepo) CancelPendingForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE password_reset_tokens
		SET status = ?
		WHERE user_id = ? AND status = ?`,
		string(domain.ResetTokenCancelled),
		userID,
		string(domain.ResetTokenPending),
	)
	return err
}
