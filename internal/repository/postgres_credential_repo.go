package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用したGoogle認可情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// Upsert はユーザーの認可情報を保存する。既存レコードは上書きする。
// RefreshTokenが空の場合は既存のRefreshTokenを保持する
// （Googleは再認可時にrefresh_tokenを返さないことがある）。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, access_token, refresh_token, token_expiry, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		   access_token  = EXCLUDED.access_token,
		   refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN credentials.refresh_token ELSE EXCLUDED.refresh_token END,
		   token_expiry  = EXCLUDED.token_expiry,
		   updated_at    = EXCLUDED.updated_at`,
		cred.UserID, cred.AccessToken, cred.RefreshToken, cred.TokenExpiry, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// FindByUserID は指定ユーザーの認可情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.Credential, error) {
	cred := &model.Credential{}
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, access_token, refresh_token, token_expiry, updated_at
		 FROM credentials WHERE user_id = $1`,
		userID,
	).Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &expiry, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	if expiry.Valid {
		cred.TokenExpiry = expiry.Time
	}

	return cred, nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
