package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/bookman/internal/repository"
)

// WatchRenewer はwatchチャネルの再登録を実行するインターフェース。
// Serviceが実装する。
type WatchRenewer interface {
	Start(ctx context.Context, userID string) error
}

// Renewer は期限が近いwatchチャネルを定期的に再登録するワーカー。
// Googleのチャネルには有効期限があり、放置すると通知が止まるため、
// 期限のleeway前に新しいチャネルへ張り替える。
type Renewer struct {
	watchRepo repository.WatchRepository
	renewer   WatchRenewer
	logger    *slog.Logger
	leeway    time.Duration
}

// NewRenewer はRenewerの新しいインスタンスを生成する。
// leewayが0以下の場合はデフォルト値12時間を使用する。
func NewRenewer(
	watchRepo repository.WatchRepository,
	renewer WatchRenewer,
	logger *slog.Logger,
	leeway time.Duration,
) *Renewer {
	if leeway <= 0 {
		leeway = 12 * time.Hour
	}
	return &Renewer{
		watchRepo: watchRepo,
		renewer:   renewer,
		logger:    logger,
		leeway:    leeway,
	}
}

// Start は指定間隔のティッカーで更新サイクルを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Renewer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("watch renewer started",
		slog.Duration("interval", interval),
		slog.Duration("leeway", r.leeway),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("watch renewal cycle failed",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("watch renewer stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("watch renewal cycle failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限がleeway以内に迫ったチャネルを1回分再登録する。
// 個別ユーザーの失敗はサイクル全体を止めない。
func (r *Renewer) RunOnce(ctx context.Context) error {
	deadline := time.Now().Add(r.leeway)

	channels, err := r.watchRepo.ListExpiring(ctx, deadline)
	if err != nil {
		return err
	}

	if len(channels) == 0 {
		return nil
	}

	r.logger.Info("renewing expiring watch channels",
		slog.Int("channel_count", len(channels)),
	)

	for _, ch := range channels {
		if err := r.renewer.Start(ctx, ch.UserID); err != nil {
			r.logger.Error("failed to renew watch channel",
				slog.String("user_id", ch.UserID),
				slog.String("channel_id", ch.ChannelID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
