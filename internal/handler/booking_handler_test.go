package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookman/internal/booking"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
)

// --- モック定義 ---

type mockBookingService struct {
	createBookingFn func(ctx context.Context, userID string, req *booking.CreateRequest) (*booking.CreateResult, error)
	inviteICSFn     func(ctx context.Context, userID, eventID string) (string, error)
}

func (m *mockBookingService) CreateBooking(ctx context.Context, userID string, req *booking.CreateRequest) (*booking.CreateResult, error) {
	if m.createBookingFn != nil {
		return m.createBookingFn(ctx, userID, req)
	}
	return &booking.CreateResult{}, nil
}

func (m *mockBookingService) InviteICS(ctx context.Context, userID, eventID string) (string, error) {
	if m.inviteICSFn != nil {
		return m.inviteICSFn(ctx, userID, eventID)
	}
	return "", nil
}

var _ BookingServiceInterface = (*mockBookingService)(nil)

// authedRequest は認証済みユーザーのコンテキストを持つリクエストを作る。
func authedRequest(method, target, body, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// --- テスト ---

func TestCreateBooking_Success_Returns201(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	svc := &mockBookingService{
		createBookingFn: func(ctx context.Context, userID string, req *booking.CreateRequest) (*booking.CreateResult, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			if req.Summary != "打ち合わせ" {
				t.Errorf("summary = %q", req.Summary)
			}
			if req.AttendeeEmail != "guest@example.com" {
				t.Errorf("attendeeEmail = %q", req.AttendeeEmail)
			}
			return &booking.CreateResult{
				EventID:  "ev-1",
				HTMLLink: "https://calendar.google.com/event?eid=ev-1",
				ICSPath:  "/api/bookings/ev-1/invite.ics",
				Start:    start,
				End:      end,
				MailSent: true,
			}, nil
		},
	}
	h := NewBookingHandler(svc)

	body := `{"summary":"打ち合わせ","attendee_email":"guest@example.com","start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z"}`
	req := authedRequest(http.MethodPost, "/api/bookings", body, "user-1")
	w := httptest.NewRecorder()

	h.CreateBooking(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp createBookingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.EventID != "ev-1" {
		t.Errorf("eventID = %q, want %q", resp.EventID, "ev-1")
	}
	if !resp.MailSent {
		t.Error("mailSent = false, want true")
	}
}

func TestCreateBooking_Unauthenticated_Returns401(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{})

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{"summary":"x"}`))
	w := httptest.NewRecorder()

	h.CreateBooking(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestCreateBooking_InvalidJSON_Returns400(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{})

	req := authedRequest(http.MethodPost, "/api/bookings", "{invalid", "user-1")
	w := httptest.NewRecorder()

	h.CreateBooking(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateBooking_MissingSummary_Returns400(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{})

	req := authedRequest(http.MethodPost, "/api/bookings", `{"attendee_email":"a@example.com"}`, "user-1")
	w := httptest.NewRecorder()

	h.CreateBooking(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateBooking_InvalidStartFormat_Returns400(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{})

	body := `{"summary":"x","attendee_email":"a@example.com","start":"2026/09/01 10:00"}`
	req := authedRequest(http.MethodPost, "/api/bookings", body, "user-1")
	w := httptest.NewRecorder()

	h.CreateBooking(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// サービス層のAPIErrorはコードに応じたHTTPステータスに変換されること。
func TestCreateBooking_ServiceErrors_MappedToStatus(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"ユーザー未登録", model.NewUserNotFoundError(), http.StatusUnauthorized},
		{"カレンダー未連携", model.NewNotAuthorizedError(), http.StatusForbidden},
		{"不正なメールアドレス", model.NewInvalidEmailError("bad"), http.StatusBadRequest},
		{"不正な時間範囲", model.NewInvalidTimeRangeError(), http.StatusBadRequest},
		{"upstream障害", model.NewUpstreamFailedError("status 503"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{
				createBookingFn: func(ctx context.Context, userID string, req *booking.CreateRequest) (*booking.CreateResult, error) {
					return nil, tt.serviceErr
				},
			}
			h := NewBookingHandler(svc)

			body := `{"summary":"x","attendee_email":"a@example.com"}`
			req := authedRequest(http.MethodPost, "/api/bookings", body, "user-1")
			w := httptest.NewRecorder()

			h.CreateBooking(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestDownloadInviteICS_Success_ReturnsCalendarContent(t *testing.T) {
	svc := &mockBookingService{
		inviteICSFn: func(ctx context.Context, userID, eventID string) (string, error) {
			if eventID != "ev-1" {
				t.Errorf("eventID = %q, want %q", eventID, "ev-1")
			}
			return "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", nil
		},
	}
	h := NewBookingHandler(svc)

	req := authedRequest(http.MethodGet, "/api/bookings/ev-1/invite.ics", "", "user-1")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("eventID", "ev-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.DownloadInviteICS(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/calendar") {
		t.Errorf("Content-Type = %q, want text/calendar", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "invite.ics") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(w.Body.String(), "BEGIN:VCALENDAR") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestDownloadInviteICS_NotTracked_Returns404(t *testing.T) {
	svc := &mockBookingService{
		inviteICSFn: func(ctx context.Context, userID, eventID string) (string, error) {
			return "", model.NewEventNotTrackedError("ev-x")
		},
	}
	h := NewBookingHandler(svc)

	req := authedRequest(http.MethodGet, "/api/bookings/ev-x/invite.ics", "", "user-1")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("eventID", "ev-x")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.DownloadInviteICS(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
