package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookman/internal/booking"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
)

// BookingServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type BookingServiceInterface interface {
	// CreateBooking はGoogle Calendarにイベントを作成し、招待メールを送る。
	CreateBooking(ctx context.Context, userID string, req *booking.CreateRequest) (*booking.CreateResult, error)
	// InviteICS は追跡イベントの招待.icsコンテンツを返す。
	InviteICS(ctx context.Context, userID, eventID string) (string, error)
}

// BookingHandler は予約管理のHTTPハンドラー。
type BookingHandler struct {
	service BookingServiceInterface
}

// NewBookingHandler はBookingHandlerを生成する。
func NewBookingHandler(service BookingServiceInterface) *BookingHandler {
	return &BookingHandler{
		service: service,
	}
}

// createBookingRequest は予約作成リクエストのボディ。
// start/endはRFC3339。省略時はサービス側のデフォルト（1時間後から1時間）を使う。
type createBookingRequest struct {
	Summary       string `json:"summary"`
	Description   string `json:"description,omitempty"`
	Location      string `json:"location,omitempty"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`
	AttendeeEmail string `json:"attendee_email"`
	AttendeeName  string `json:"attendee_name,omitempty"`
}

// createBookingResponse は予約作成のAPIレスポンス。
type createBookingResponse struct {
	EventID  string    `json:"event_id"`
	HTMLLink string    `json:"html_link,omitempty"`
	ICSPath  string    `json:"ics_path"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	MailSent bool      `json:"mail_sent"`
}

// CreateBooking は予約イベントを作成する。
// POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Summary == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "summaryは必須です。",
			Category: "validation",
			Action:   "イベントのタイトルを指定してください。",
		})
		return
	}

	start, end, ok := parseTimeRange(w, req.Start, req.End)
	if !ok {
		return
	}

	result, err := h.service.CreateBooking(r.Context(), userID, &booking.CreateRequest{
		Summary:       req.Summary,
		Description:   req.Description,
		Location:      req.Location,
		Start:         start,
		End:           end,
		AttendeeEmail: req.AttendeeEmail,
		AttendeeName:  req.AttendeeName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createBookingResponse{
		EventID:  result.EventID,
		HTMLLink: result.HTMLLink,
		ICSPath:  result.ICSPath,
		Start:    result.Start,
		End:      result.End,
		MailSent: result.MailSent,
	})
}

// DownloadInviteICS は追跡イベントの招待.icsをダウンロードさせる。
// GET /api/bookings/{eventID}/invite.ics
func (h *BookingHandler) DownloadInviteICS(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	eventID := chi.URLParam(r, "eventID")

	content, err := h.service.InviteICS(r.Context(), userID, eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8; method=REQUEST")
	w.Header().Set("Content-Disposition", `attachment; filename="invite.ics"`)
	w.Write([]byte(content))
}

// parseTimeRange はリクエストのstart/end文字列を解析する。
// 解析に失敗した場合はエラーレスポンスを書き込み、okにfalseを返す。
func parseTimeRange(w http.ResponseWriter, startStr, endStr string) (start, end time.Time, ok bool) {
	if startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "startの形式が不正です。",
				Category: "validation",
				Action:   "RFC3339形式（例: 2026-01-02T15:04:05+09:00）で指定してください。",
			})
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	if endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "endの形式が不正です。",
				Category: "validation",
				Action:   "RFC3339形式（例: 2026-01-02T15:04:05+09:00）で指定してください。",
			})
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	return start, end, true
}

// apiErrorResponse はAPIエラーレスポンスの統一フォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeNotAuthorized:
		return http.StatusForbidden
	case model.ErrCodeInvalidEmail, model.ErrCodeInvalidResponse, model.ErrCodeInvalidTimeRange:
		return http.StatusBadRequest
	case model.ErrCodeEventNotTracked:
		return http.StatusNotFound
	case model.ErrCodeUpstreamFailed, model.ErrCodeInviteSendFailed, model.ErrCodeWatchRegistration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
