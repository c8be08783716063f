package handler

import (
	"net/http"

	"github.com/hitoshi/bookman/internal/model"
)

// Googleプッシュ通知のヘッダー名。通知はボディを持たず、
// 相関に必要な情報はすべてヘッダーで運ばれる。
const (
	headerChannelID     = "X-Goog-Channel-ID"
	headerResourceID    = "X-Goog-Resource-ID"
	headerResourceState = "X-Goog-Resource-State"
)

// NotificationEnqueuer は通知をバックグラウンド処理キューに積むインターフェース。
// webhook.Dispatcherが実装する。
type NotificationEnqueuer interface {
	Enqueue(n model.Notification) bool
}

// WebhookHandler はGoogleプッシュ通知の受信エンドポイント。
type WebhookHandler struct {
	dispatcher NotificationEnqueuer
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(dispatcher NotificationEnqueuer) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
	}
}

// Receive はプッシュ通知を受信する。
// POST /webhooks/google/calendar
//
// 必須ヘッダーが欠けている場合のみ400を返す。それ以外は処理結果に
// かかわらず即座に200を返す。応答が遅れるとproviderはタイムアウトと
// みなして再送するため、実際の処理はキューに積んで非同期に行う。
// キュー飽和による破棄も200のまま（providerの再配送に委ねる）。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get(headerChannelID)
	resourceID := r.Header.Get(headerResourceID)
	resourceState := r.Header.Get(headerResourceState)

	if channelID == "" || resourceID == "" || resourceState == "" {
		http.Error(w, "missing notification headers", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	h.dispatcher.Enqueue(model.Notification{
		ChannelID:     channelID,
		ResourceID:    resourceID,
		ResourceState: resourceState,
	})
}
