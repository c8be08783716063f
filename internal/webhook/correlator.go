// Package webhook はGoogleカレンダーのプッシュ通知を受けて、
// アプリケーションが作成したイベントのRSVP変化を相関・報告する。
// 通知はペイロードを持たないトリガーであり、受信後にupstreamから
// 直近の更新イベントを取得して追跡対象と突き合わせる（pull-after-push）。
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/model"
)

// ChannelResolver はチャネルIDからオーナーのユーザーIDを解決するインターフェース。
// repository.WatchRepositoryの部分集合。
type ChannelResolver interface {
	FindUserIDByChannel(ctx context.Context, channelID string) (string, error)
}

// WatchCleaner はwatch登録を破棄するインターフェース。watch.Serviceが実装する。
type WatchCleaner interface {
	ClearByChannel(ctx context.Context, channelID string) error
}

// TrackedFilter は候補イベントIDを追跡対象のみに絞り込むインターフェース。
// repository.TrackedEventRepositoryの部分集合。
type TrackedFilter interface {
	FilterTracked(ctx context.Context, userID string, candidateIDs []string) ([]string, error)
}

// TokenProvider はユーザーの有効なアクセストークンを解決するインターフェース。
type TokenProvider interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// CalendarAPI は相関処理に必要なGoogle Calendar APIのインターフェース。
type CalendarAPI interface {
	ListUpdatedEvents(ctx context.Context, accessToken string, since time.Time) ([]*gcal.Event, error)
}

// StatusSink はRSVP状態デルタの出力先インターフェース。
type StatusSink interface {
	Publish(ctx context.Context, delta *model.AttendeeStatus) error
}

// MetricsRecorder は相関処理のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordNotification(resourceState string)
	RecordCorrelation(outcome string)
	RecordDeltas(count int)
	RecordUpstreamLatency(duration time.Duration)
}

// 相関結果のメトリクスoutcome値。
const (
	OutcomeOK              = "ok"
	OutcomeNoop            = "noop"
	OutcomeChannelCleared  = "channel_cleared"
	OutcomeChannelNotFound = "channel_not_found"
	OutcomeNoCredentials   = "no_credentials"
	OutcomeUpstreamFailed  = "upstream_fetch_failed"
	OutcomeDropped         = "dropped"
)

// Report は通知1件の相関結果を表す。
type Report struct {
	UserID string
	Deltas []model.AttendeeStatus
}

// Correlator は通知をユーザーと追跡イベントに相関させる。
//
// 通知ごとの処理は終端的であり、解決失敗・認可欠如・upstream取得失敗の
// いずれもログに記録して破棄する（リトライ・再キューなし）。providerが
// at-least-onceで再配送するため、ローカルはat-most-onceで処理する。
type Correlator struct {
	resolver ChannelResolver
	cleaner  WatchCleaner
	tracked  TrackedFilter
	tokens   TokenProvider
	calendar CalendarAPI
	sink     StatusSink
	metrics  MetricsRecorder
	locks    *KeyedMutex
	logger   *slog.Logger
	lookback time.Duration
}

// NewCorrelator はCorrelatorを生成する。
// lookbackが0以下の場合はデフォルト値15分を使用する。
func NewCorrelator(
	resolver ChannelResolver,
	cleaner WatchCleaner,
	tracked TrackedFilter,
	tokens TokenProvider,
	calendar CalendarAPI,
	sink StatusSink,
	metrics MetricsRecorder,
	logger *slog.Logger,
	lookback time.Duration,
) *Correlator {
	if lookback <= 0 {
		lookback = 15 * time.Minute
	}
	return &Correlator{
		resolver: resolver,
		cleaner:  cleaner,
		tracked:  tracked,
		tokens:   tokens,
		calendar: calendar,
		sink:     sink,
		metrics:  metrics,
		locks:    NewKeyedMutex(),
		logger:   logger,
		lookback: lookback,
	}
}

// Process は通知1件を相関処理する。
//
// resource_stateが"exists"の場合: チャネル→ユーザー解決、トークン解決、
// 直近lookback分の更新イベント取得、追跡対象との積集合、出席者ごとの
// RSVPデルタをStatusSinkへ出力する。
// "not_exists"の場合: watch登録を破棄する。upstream取得は行わない。
// "sync"（watch登録直後の初回通知）は何もしない。
//
// 失敗はmodel.ErrChannelNotFound / model.ErrNoCredentials /
// model.ErrUpstreamFetch のいずれかにラップして返す。呼び出し側
// （ディスパッチャ）はログに記録して破棄する。
func (c *Correlator) Process(ctx context.Context, n model.Notification) (*Report, error) {
	c.metrics.RecordNotification(n.ResourceState)

	switch n.ResourceState {
	case model.ResourceStateSync:
		// watch登録直後の疎通確認。処理対象の変更は含まれない。
		c.metrics.RecordCorrelation(OutcomeNoop)
		return &Report{}, nil

	case model.ResourceStateNotExists:
		return c.processNotExists(ctx, n)

	case model.ResourceStateExists:
		return c.processExists(ctx, n)

	default:
		c.logger.Warn("unknown resource state in notification",
			slog.String("channel_id", n.ChannelID),
			slog.String("resource_state", n.ResourceState),
		)
		c.metrics.RecordCorrelation(OutcomeNoop)
		return &Report{}, nil
	}
}

// processNotExists はリソース消滅の通知を処理する。
// 当該チャネルのwatch登録を破棄するのみで、イベント取得は行わない。
func (c *Correlator) processNotExists(ctx context.Context, n model.Notification) (*Report, error) {
	userID, err := c.resolver.FindUserIDByChannel(ctx, n.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %s: %w", n.ChannelID, err)
	}

	// ユーザーのwatch/追跡状態の変更は同一ユーザー内で直列化する
	if userID != "" {
		unlock := c.locks.Lock(userID)
		defer unlock()
	}

	if err := c.cleaner.ClearByChannel(ctx, n.ChannelID); err != nil {
		return nil, fmt.Errorf("failed to clear watch for channel %s: %w", n.ChannelID, err)
	}

	c.logger.Info("watch channel removed after resource gone",
		slog.String("channel_id", n.ChannelID),
		slog.String("resource_id", n.ResourceID),
	)
	c.metrics.RecordCorrelation(OutcomeChannelCleared)

	return &Report{UserID: userID}, nil
}

// processExists はリソース変更の通知を処理し、RSVPデルタを報告する。
func (c *Correlator) processExists(ctx context.Context, n model.Notification) (*Report, error) {
	// 1. チャネル→ユーザー解決
	userID, err := c.resolver.FindUserIDByChannel(ctx, n.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %s: %w", n.ChannelID, err)
	}
	if userID == "" {
		c.metrics.RecordCorrelation(OutcomeChannelNotFound)
		return nil, fmt.Errorf("channel %s: %w", n.ChannelID, model.ErrChannelNotFound)
	}

	unlock := c.locks.Lock(userID)
	defer unlock()

	// 2. refresh credentialからアクセストークンを解決
	accessToken, err := c.tokens.AccessToken(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNoCredentials) {
			c.metrics.RecordCorrelation(OutcomeNoCredentials)
			return nil, err
		}
		c.metrics.RecordCorrelation(OutcomeUpstreamFailed)
		return nil, fmt.Errorf("%w: %s", model.ErrUpstreamFetch, err.Error())
	}

	// 3. 直近lookback分の更新イベントをupstreamから取得
	since := time.Now().Add(-c.lookback)
	start := time.Now()
	events, err := c.calendar.ListUpdatedEvents(ctx, accessToken, since)
	c.metrics.RecordUpstreamLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordCorrelation(OutcomeUpstreamFailed)
		return nil, fmt.Errorf("%w: %s", model.ErrUpstreamFetch, err.Error())
	}

	if len(events) == 0 {
		c.logger.Info("no recent event changes for notification",
			slog.String("user_id", userID),
			slog.String("channel_id", n.ChannelID),
		)
		c.metrics.RecordCorrelation(OutcomeOK)
		return &Report{UserID: userID}, nil
	}

	// 4. 追跡対象との積集合。アプリケーションが作成していないイベントは
	//    ここで落ちる（無関係なカレンダー活動を予約更新と誤認しない）。
	candidateIDs := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.ID != "" {
			candidateIDs = append(candidateIDs, ev.ID)
		}
	}

	trackedIDs, err := c.tracked.FilterTracked(ctx, userID, candidateIDs)
	if err != nil {
		c.metrics.RecordCorrelation(OutcomeUpstreamFailed)
		return nil, fmt.Errorf("%w: failed to filter tracked events: %s", model.ErrUpstreamFetch, err.Error())
	}

	trackedSet := make(map[string]struct{}, len(trackedIDs))
	for _, id := range trackedIDs {
		trackedSet[id] = struct{}{}
	}

	// 5. 出席者ごとに1レコードのRSVPデルタを出力
	now := time.Now()
	var deltas []model.AttendeeStatus
	for _, ev := range events {
		if _, ok := trackedSet[ev.ID]; !ok {
			continue
		}
		for _, attendee := range ev.Attendees {
			status := attendee.ResponseStatus
			if status == "" {
				status = model.ResponseStatusUnknown
			}
			delta := model.AttendeeStatus{
				UserID:         userID,
				EventID:        ev.ID,
				EventSummary:   ev.Summary,
				AttendeeEmail:  attendee.Email,
				ResponseStatus: status,
				ObservedAt:     now,
			}
			// シンクの失敗は通知全体を失敗させない（デルタ単位で記録して続行）
			if err := c.sink.Publish(ctx, &delta); err != nil {
				c.logger.Error("failed to publish attendee status",
					slog.String("user_id", userID),
					slog.String("event_id", ev.ID),
					slog.String("attendee_email", attendee.Email),
					slog.String("error", err.Error()),
				)
			}
			deltas = append(deltas, delta)
		}
	}

	if len(deltas) == 0 {
		c.logger.Info("no tracked booking events among recent changes",
			slog.String("user_id", userID),
			slog.String("channel_id", n.ChannelID),
			slog.Int("updated_count", len(events)),
		)
	} else {
		c.logger.Info("booking status deltas reported",
			slog.String("user_id", userID),
			slog.String("channel_id", n.ChannelID),
			slog.Int("delta_count", len(deltas)),
		)
	}

	c.metrics.RecordCorrelation(OutcomeOK)
	c.metrics.RecordDeltas(len(deltas))

	return &Report{UserID: userID, Deltas: deltas}, nil
}
