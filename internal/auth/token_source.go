package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// tokenExpiryLeeway はアクセストークンを期限の何秒前に失効扱いするか。
const tokenExpiryLeeway = 60 * time.Second

// TokenSource は保存済みcredentialから有効なアクセストークンを解決する。
// アクセストークンが未取得または期限切れの場合はrefresh_tokenで引き換え、
// 取得したトークンをcredentialsに書き戻す。
type TokenSource struct {
	oauth    OAuthProvider
	credRepo repository.CredentialRepository
}

// NewTokenSource はTokenSourceを生成する。
func NewTokenSource(oauth OAuthProvider, credRepo repository.CredentialRepository) *TokenSource {
	return &TokenSource{
		oauth:    oauth,
		credRepo: credRepo,
	}
}

// AccessToken は指定ユーザーの有効なアクセストークンを返す。
// credentialが存在しない、またはrefresh_tokenを持たない場合は
// model.ErrNoCredentialsを返す。
func (s *TokenSource) AccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := s.credRepo.FindByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil || cred.RefreshToken == "" {
		return "", fmt.Errorf("user %s: %w", userID, model.ErrNoCredentials)
	}

	// 保存済みアクセストークンがまだ有効ならそのまま使う
	if cred.AccessToken != "" && time.Now().Add(tokenExpiryLeeway).Before(cred.TokenExpiry) {
		return cred.AccessToken, nil
	}

	accessToken, expiry, err := s.oauth.RefreshAccessToken(ctx, cred.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}

	cred.AccessToken = accessToken
	cred.TokenExpiry = expiry
	cred.UpdatedAt = time.Now()
	// 書き戻し失敗は次回リフレッシュで回復するため、トークン自体は返す
	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		slog.Warn("failed to persist refreshed access token",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return accessToken, nil
}
