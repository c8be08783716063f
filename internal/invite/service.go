// Package invite はカレンダー連携なしのスタンドアロン招待フローを提供する。
// イベントはGoogle Calendarに作成されず、.ics添付の招待メールと
// メール内の回答リンクだけで完結する。
package invite

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookman/internal/ics"
	"github.com/hitoshi/bookman/internal/mailer"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// defaultDuration は終了時刻未指定の場合のイベント長。
const defaultDuration = 1 * time.Hour

// MetricsRecorder は招待送信のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordInviteSent()
}

// SendRequest はスタンドアロン招待送信の入力を表す。
type SendRequest struct {
	Summary        string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	OrganizerName  string
	OrganizerEmail string
	AttendeeEmail  string
	AttendeeName   string
}

// SendResult はスタンドアロン招待送信の結果を表す。
type SendResult struct {
	EventID string
}

// Service はスタンドアロン招待のビジネスロジックを提供する。
type Service struct {
	responseRepo repository.InviteResponseRepository
	sender       mailer.Sender
	metrics      MetricsRecorder
	baseURL      string
}

// NewService はServiceを生成する。
func NewService(
	responseRepo repository.InviteResponseRepository,
	sender mailer.Sender,
	metrics MetricsRecorder,
	baseURL string,
) *Service {
	return &Service{
		responseRepo: responseRepo,
		sender:       sender,
		metrics:      metrics,
		baseURL:      baseURL,
	}
}

// SendStandaloneInvite は.ics添付の招待メールを送信する。
// イベントIDはこのサービスが採番するUUIDで、メール本文の
// 承諾/辞退/未定リンクと回答の記録に使われる。
func (s *Service) SendStandaloneInvite(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if _, err := mail.ParseAddress(req.AttendeeEmail); err != nil {
		return nil, model.NewInvalidEmailError(req.AttendeeEmail)
	}
	if _, err := mail.ParseAddress(req.OrganizerEmail); err != nil {
		return nil, model.NewInvalidEmailError(req.OrganizerEmail)
	}

	start := req.Start
	if start.IsZero() {
		start = time.Now().Add(defaultDuration)
	}
	end := req.End
	if end.IsZero() {
		end = start.Add(defaultDuration)
	}

	eventID := uuid.New().String()

	icsContent, err := ics.BuildInvite(&ics.Invite{
		EventID:        eventID,
		Summary:        req.Summary,
		Description:    req.Description,
		Location:       req.Location,
		Start:          start,
		End:            end,
		OrganizerName:  req.OrganizerName,
		OrganizerEmail: req.OrganizerEmail,
		AttendeeName:   req.AttendeeName,
		AttendeeEmail:  req.AttendeeEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build invite ics: %w", err)
	}

	inviteMail := &mailer.InviteMail{
		To:          req.AttendeeEmail,
		Subject:     fmt.Sprintf("ご招待: %s", req.Summary),
		HTMLBody:    s.buildInviteBody(eventID, req, start, end),
		ICSContent:  icsContent,
		ICSFilename: "invite.ics",
	}
	if err := s.sender.SendInvite(ctx, inviteMail); err != nil {
		return nil, model.NewInviteSendFailedError(err.Error())
	}

	s.metrics.RecordInviteSent()
	slog.Info("standalone invite sent",
		slog.String("event_id", eventID),
		slog.String("attendee_email", req.AttendeeEmail),
	)

	return &SendResult{EventID: eventID}, nil
}

// RecordResponse は回答リンク経由の回答を記録する。
// 同一(イベント, メールアドレス)への再回答は上書きする。
func (s *Service) RecordResponse(ctx context.Context, eventID, attendeeEmail, response string) error {
	if !model.ValidInviteResponse(response) {
		return model.NewInvalidResponseError(response)
	}
	if _, err := mail.ParseAddress(attendeeEmail); err != nil {
		return model.NewInvalidEmailError(attendeeEmail)
	}

	resp := &model.InviteResponse{
		EventID:       eventID,
		AttendeeEmail: attendeeEmail,
		Response:      response,
		RespondedAt:   time.Now(),
	}
	if err := s.responseRepo.Record(ctx, resp); err != nil {
		return fmt.Errorf("failed to record invite response: %w", err)
	}

	slog.Info("invite response recorded",
		slog.String("event_id", eventID),
		slog.String("attendee_email", attendeeEmail),
		slog.String("response", response),
	)
	return nil
}

// ListResponses は指定イベントへの回答一覧を返す。
func (s *Service) ListResponses(ctx context.Context, eventID string) ([]*model.InviteResponse, error) {
	responses, err := s.responseRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invite responses: %w", err)
	}
	return responses, nil
}

// respondLink は回答リンクを組み立てる。
func (s *Service) respondLink(eventID, email, response string) string {
	params := url.Values{
		"email":    {email},
		"response": {response},
	}
	return fmt.Sprintf("%s/invites/respond/%s?%s", s.baseURL, eventID, params.Encode())
}

// buildInviteBody は招待メールのHTML本文を組み立てる。
// 回答リンクは承諾/辞退/未定の3つを並べる。
func (s *Service) buildInviteBody(eventID string, req *SendRequest, start, end time.Time) string {
	body := fmt.Sprintf(
		"<p>%sさんから予定の招待が届いています。</p><h2>%s</h2><p>%s 〜 %s</p>",
		mailer.Sanitize(req.OrganizerName),
		mailer.Sanitize(req.Summary),
		start.Format("2006-01-02 15:04"),
		end.Format("15:04"),
	)
	if req.Location != "" {
		body += fmt.Sprintf("<p>場所: %s</p>", mailer.Sanitize(req.Location))
	}
	if req.Description != "" {
		body += fmt.Sprintf("<p>%s</p>", mailer.Sanitize(req.Description))
	}
	body += fmt.Sprintf(
		`<p><a href="%s">承諾する</a> | <a href="%s">辞退する</a> | <a href="%s">未定</a></p>`,
		s.respondLink(eventID, req.AttendeeEmail, model.InviteResponseAccepted),
		s.respondLink(eventID, req.AttendeeEmail, model.InviteResponseDeclined),
		s.respondLink(eventID, req.AttendeeEmail, model.InviteResponseTentative),
	)
	return body
}
