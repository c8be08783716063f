package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/bookman/internal/model"
)

// NotificationProcessor は通知1件を処理するインターフェース。Correlatorが実装する。
type NotificationProcessor interface {
	Process(ctx context.Context, n model.Notification) (*Report, error)
}

// Dispatcher は受信済み通知のバックグラウンド処理を行う。
//
// webhookエンドポイントはproviderに即時200を返す必要があるため
// （タイムアウトすると再送される）、通知は有界キューに積むだけで
// 応答を返し、処理はワーカーが非同期に実行する。Enqueueはブロック
// しない。キューが飽和している場合は通知を破棄する（providerの
// 再配送に委ねる）。
type Dispatcher struct {
	processor NotificationProcessor
	metrics   MetricsRecorder
	logger    *slog.Logger
	queue     chan model.Notification
	workers   int
	wg        sync.WaitGroup
}

// NewDispatcher はDispatcherを生成する。
// queueSizeが0以下の場合は256、workersが0以下の場合は4を使用する。
func NewDispatcher(
	processor NotificationProcessor,
	metrics MetricsRecorder,
	logger *slog.Logger,
	queueSize int,
	workers int,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		processor: processor,
		metrics:   metrics,
		logger:    logger,
		queue:     make(chan model.Notification, queueSize),
		workers:   workers,
	}
}

// Start はワーカーゴルーチンを起動する。
// コンテキストがキャンセルされると、その時点でキューに残っている通知を
// 処理しきってから終了する。処理中の通知は完了（または静かな失敗）まで
// 実行される。
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.logger.Info("webhook dispatcher started",
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.queue)),
	)
}

// Wait は全ワーカーの終了を待つ。Startの後、シャットダウン時に呼ぶ。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue は通知をバックグラウンド処理キューに積む。ブロックしない。
// キューが飽和している場合はfalseを返し、通知は破棄される
// （providerがat-least-onceで再配送する）。
func (d *Dispatcher) Enqueue(n model.Notification) bool {
	select {
	case d.queue <- n:
		return true
	default:
		d.logger.Warn("webhook queue saturated, dropping notification",
			slog.String("channel_id", n.ChannelID),
			slog.String("resource_state", n.ResourceState),
		)
		d.metrics.RecordCorrelation(OutcomeDropped)
		return false
	}
}

// worker はキューから通知を取り出して処理する。
// 処理エラーはここで終端する。webhookの応答は既に返っているため、
// いかなるエラーもハンドラ境界を越えない。
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return
		case n := <-d.queue:
			if _, err := d.processor.Process(ctx, n); err != nil {
				d.logNotificationError(n, err)
			}
		}
	}
}

// drain は停止時点でキューに残っている通知を処理する。
// 親コンテキストは既にキャンセル済みのため、切り離したコンテキストで
// 実行し、残通知の上流呼び出しが即座に失敗しないようにする。
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			if _, err := d.processor.Process(ctx, n); err != nil {
				d.logNotificationError(n, err)
			}
		default:
			return
		}
	}
}

// logNotificationError は通知処理の失敗をエラー分類付きでログに記録する。
func (d *Dispatcher) logNotificationError(n model.Notification, err error) {
	var kind string
	switch {
	case errors.Is(err, model.ErrChannelNotFound):
		kind = "channel_not_found"
	case errors.Is(err, model.ErrNoCredentials):
		kind = "no_credentials"
	case errors.Is(err, model.ErrUpstreamFetch):
		kind = "upstream_fetch_failed"
	default:
		kind = "internal"
	}

	d.logger.Error("notification processing failed",
		slog.String("channel_id", n.ChannelID),
		slog.String("resource_id", n.ResourceID),
		slog.String("resource_state", n.ResourceState),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}
