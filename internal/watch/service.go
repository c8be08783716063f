// Package watch はカレンダーのプッシュ通知チャネルの登録・更新・破棄を提供する。
package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/repository"
)

// TokenProvider はユーザーの有効なアクセストークンを解決するインターフェース。
// auth.TokenSourceが実装する。
type TokenProvider interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// CalendarAPI はwatch操作に必要なGoogle Calendar APIのインターフェース。
type CalendarAPI interface {
	WatchEvents(ctx context.Context, accessToken, channelID, address string) (*gcal.WatchResult, error)
	StopChannel(ctx context.Context, accessToken, channelID, resourceID string) error
}

// Service はwatchチャネルのライフサイクルを管理する。
type Service struct {
	watchRepo  repository.WatchRepository
	tokens     TokenProvider
	calendar   CalendarAPI
	webhookURL string
}

// NewService はServiceを生成する。
func NewService(
	watchRepo repository.WatchRepository,
	tokens TokenProvider,
	calendar CalendarAPI,
	webhookURL string,
) *Service {
	return &Service{
		watchRepo:  watchRepo,
		tokens:     tokens,
		calendar:   calendar,
		webhookURL: webhookURL,
	}
}

// Start は指定ユーザーのカレンダーに新しいwatchチャネルを登録する。
// 既存チャネルがある場合はベストエフォートで停止した上で、
// watch登録を無条件に上書きする（ユーザーごとにアクティブなチャネルは1つ）。
func (s *Service) Start(ctx context.Context, userID string) error {
	accessToken, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve access token: %w", err)
	}

	// 旧チャネルの停止はベストエフォート。失敗しても新規登録を優先する。
	if prev, err := s.watchRepo.FindByUserID(ctx, userID); err == nil && prev != nil {
		if stopErr := s.calendar.StopChannel(ctx, accessToken, prev.ChannelID, prev.ResourceID); stopErr != nil {
			slog.Warn("failed to stop previous watch channel",
				slog.String("user_id", userID),
				slog.String("channel_id", prev.ChannelID),
				slog.String("error", stopErr.Error()),
			)
		}
	}

	channelID := uuid.New().String()
	result, err := s.calendar.WatchEvents(ctx, accessToken, channelID, s.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to register watch channel: %w", err)
	}

	if err := s.watchRepo.Set(ctx, userID, result.ChannelID, result.ResourceID, result.Expiry); err != nil {
		return fmt.Errorf("failed to persist watch channel: %w", err)
	}

	slog.Info("calendar watch started",
		slog.String("user_id", userID),
		slog.String("channel_id", result.ChannelID),
		slog.String("resource_id", result.ResourceID),
		slog.Time("expiry", result.Expiry),
	)

	return nil
}

// ClearByChannel はチャネルIDでwatch登録を破棄する。
// upstreamから"not_exists"を受けた場合のクリーンアップに使う。
// チャネル未知の場合は何もしない。
func (s *Service) ClearByChannel(ctx context.Context, channelID string) error {
	if err := s.watchRepo.ClearByChannel(ctx, channelID); err != nil {
		return fmt.Errorf("failed to clear watch channel: %w", err)
	}

	slog.Info("watch channel cleared", slog.String("channel_id", channelID))
	return nil
}
