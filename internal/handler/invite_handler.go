package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookman/internal/invite"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
)

// InviteServiceInterface は招待ハンドラーが必要とするサービスインターフェース。
type InviteServiceInterface interface {
	// SendStandaloneInvite は.ics添付の招待メールを送信する。
	SendStandaloneInvite(ctx context.Context, req *invite.SendRequest) (*invite.SendResult, error)
	// RecordResponse は回答リンク経由の回答を記録する。
	RecordResponse(ctx context.Context, eventID, attendeeEmail, response string) error
	// ListResponses は指定イベントへの回答一覧を返す。
	ListResponses(ctx context.Context, eventID string) ([]*model.InviteResponse, error)
}

// InviteHandler はスタンドアロン招待のHTTPハンドラー。
type InviteHandler struct {
	service InviteServiceInterface
}

// NewInviteHandler はInviteHandlerを生成する。
func NewInviteHandler(service InviteServiceInterface) *InviteHandler {
	return &InviteHandler{
		service: service,
	}
}

// sendInviteRequest はスタンドアロン招待送信リクエストのボディ。
type sendInviteRequest struct {
	Summary        string `json:"summary"`
	Description    string `json:"description,omitempty"`
	Location       string `json:"location,omitempty"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	OrganizerName  string `json:"organizer_name"`
	OrganizerEmail string `json:"organizer_email"`
	AttendeeEmail  string `json:"attendee_email"`
	AttendeeName   string `json:"attendee_name,omitempty"`
}

// inviteResponseItem は回答一覧のAPIレスポンス1件分。
type inviteResponseItem struct {
	EventID       string    `json:"event_id"`
	AttendeeEmail string    `json:"attendee_email"`
	Response      string    `json:"response"`
	RespondedAt   time.Time `json:"responded_at"`
}

// SendInvite はスタンドアロン招待メールを送信する。
// POST /api/invites
func (h *InviteHandler) SendInvite(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	var req sendInviteRequest
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

	result, err := h.service.SendStandaloneInvite(r.Context(), &invite.SendRequest{
		Summary:        req.Summary,
		Description:    req.Description,
		Location:       req.Location,
		Start:          start,
		End:            end,
		OrganizerName:  req.OrganizerName,
		OrganizerEmail: req.OrganizerEmail,
		AttendeeEmail:  req.AttendeeEmail,
		AttendeeName:   req.AttendeeName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"event_id": result.EventID,
	})
}

// ListResponses は招待への回答一覧を返す。
// GET /api/invites/{eventID}/responses
func (h *InviteHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	eventID := chi.URLParam(r, "eventID")

	responses, err := h.service.ListResponses(r.Context(), eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]inviteResponseItem, 0, len(responses))
	for _, resp := range responses {
		items = append(items, inviteResponseItem{
			EventID:       resp.EventID,
			AttendeeEmail: resp.AttendeeEmail,
			Response:      resp.Response,
			RespondedAt:   resp.RespondedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// Respond は招待メール内のリンクからの回答を記録し、確認ページを表示する。
// 認証なしでアクセスされる公開エンドポイント。
// GET /invites/respond/{eventID}?email=xxx&response=accepted
func (h *InviteHandler) Respond(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	email := r.URL.Query().Get("email")
	response := r.URL.Query().Get("response")

	if err := h.service.RecordResponse(r.Context(), eventID, email, response); err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, respondErrorPage)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, respondConfirmPage, html.EscapeString(responseLabel(response)))
}

// responseLabel は回答値の表示用ラベルを返す。
func responseLabel(response string) string {
	switch response {
	case model.InviteResponseAccepted:
		return "承諾"
	case model.InviteResponseDeclined:
		return "辞退"
	case model.InviteResponseTentative:
		return "未定"
	}
	return response
}

const respondConfirmPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>回答を受け付けました</title></head>
<body>
<h1>回答を受け付けました</h1>
<p>「%s」として記録しました。このページは閉じて構いません。</p>
</body>
</html>`

const respondErrorPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>回答を受け付けられませんでした</title></head>
<body>
<h1>回答を受け付けられませんでした</h1>
<p>リンクが正しくないか、有効期限が切れています。招待メールのリンクをもう一度ご確認ください。</p>
</body>
</html>`
