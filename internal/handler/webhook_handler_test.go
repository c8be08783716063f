package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/bookman/internal/model"
)

// --- モック定義 ---

type mockEnqueuer struct {
	enqueueFn func(n model.Notification) bool
	enqueued  []model.Notification
}

func (m *mockEnqueuer) Enqueue(n model.Notification) bool {
	m.enqueued = append(m.enqueued, n)
	if m.enqueueFn != nil {
		return m.enqueueFn(n)
	}
	return true
}

var _ NotificationEnqueuer = (*mockEnqueuer)(nil)

// --- テスト ---

func TestReceive_ValidHeaders_Returns200AndEnqueues(t *testing.T) {
	enq := &mockEnqueuer{}
	h := NewWebhookHandler(enq)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/google/calendar", nil)
	req.Header.Set("X-Goog-Channel-ID", "ch-1")
	req.Header.Set("X-Goog-Resource-ID", "res-1")
	req.Header.Set("X-Goog-Resource-State", "exists")
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(enq.enqueued) != 1 {
		t.Fatalf("enqueued count = %d, want 1", len(enq.enqueued))
	}
	n := enq.enqueued[0]
	if n.ChannelID != "ch-1" || n.ResourceID != "res-1" || n.ResourceState != "exists" {
		t.Errorf("enqueued notification = %+v", n)
	}
}

func TestReceive_MissingHeaders_Returns400(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{
			name:    "全ヘッダー欠落",
			headers: map[string]string{},
		},
		{
			name: "チャネルID欠落",
			headers: map[string]string{
				"X-Goog-Resource-ID":    "res-1",
				"X-Goog-Resource-State": "exists",
			},
		},
		{
			name: "リソースID欠落",
			headers: map[string]string{
				"X-Goog-Channel-ID":     "ch-1",
				"X-Goog-Resource-State": "exists",
			},
		},
		{
			name: "リソース状態欠落",
			headers: map[string]string{
				"X-Goog-Channel-ID":  "ch-1",
				"X-Goog-Resource-ID": "res-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enq := &mockEnqueuer{}
			h := NewWebhookHandler(enq)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/google/calendar", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			h.Receive(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(enq.enqueued) != 0 {
				t.Errorf("nothing should be enqueued, got %d", len(enq.enqueued))
			}
		})
	}
}

// キュー飽和でEnqueueがfalseを返しても応答は200のままであること
// （providerの再配送に委ねる）。
func TestReceive_QueueFull_StillReturns200(t *testing.T) {
	enq := &mockEnqueuer{
		enqueueFn: func(n model.Notification) bool { return false },
	}
	h := NewWebhookHandler(enq)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/google/calendar", nil)
	req.Header.Set("X-Goog-Channel-ID", "ch-1")
	req.Header.Set("X-Goog-Resource-ID", "res-1")
	req.Header.Set("X-Goog-Resource-State", "exists")
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
