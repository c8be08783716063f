// Package booking は予約イベントの作成と招待.icsの提供を行う。
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/ics"
	"github.com/hitoshi/bookman/internal/mailer"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// defaultLeadTime は開始時刻未指定の場合に現在時刻へ足すオフセット。
const defaultLeadTime = 1 * time.Hour

// defaultDuration は終了時刻未指定の場合のイベント長。
const defaultDuration = 1 * time.Hour

// TokenProvider はユーザーの有効なアクセストークンを解決するインターフェース。
type TokenProvider interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// CalendarAPI は予約作成に必要なGoogle Calendar APIのインターフェース。
type CalendarAPI interface {
	InsertEvent(ctx context.Context, accessToken string, ev *gcal.EventRequest) (*gcal.Event, error)
}

// MetricsRecorder は予約関連のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordInviteSent()
}

// CreateRequest は予約作成の入力を表す。
type CreateRequest struct {
	Summary       string
	Description   string
	Location      string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
	AttendeeName  string
}

// CreateResult は予約作成の結果を表す。
type CreateResult struct {
	EventID  string
	HTMLLink string
	ICSPath  string
	Start    time.Time
	End      time.Time
	MailSent bool
}

// Service は予約作成のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	trackedRepo repository.TrackedEventRepository
	tokens      TokenProvider
	calendar    CalendarAPI
	sender      mailer.Sender
	metrics     MetricsRecorder
	baseURL     string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	trackedRepo repository.TrackedEventRepository,
	tokens TokenProvider,
	calendar CalendarAPI,
	sender mailer.Sender,
	metrics MetricsRecorder,
	baseURL string,
) *Service {
	return &Service{
		userRepo:    userRepo,
		trackedRepo: trackedRepo,
		tokens:      tokens,
		calendar:    calendar,
		sender:      sender,
		metrics:     metrics,
		baseURL:     baseURL,
	}
}

// CreateBooking は予約イベントを作成する。
//
// Google Calendarにイベントを作成し、作成されたイベントIDをキーに
// 招待.icsを生成して追跡イベントとして登録した上で、出席者へ招待
// メールを送信する。追跡登録まで完了したイベントだけがRSVP相関の
// 対象になる。
//
// 招待メールの送信失敗は予約を失敗させない（sendUpdates=allにより
// Google側からも招待が届くため）。結果のMailSentで判別できる。
func (s *Service) CreateBooking(ctx context.Context, userID string, req *CreateRequest) (*CreateResult, error) {
	if _, err := mail.ParseAddress(req.AttendeeEmail); err != nil {
		return nil, model.NewInvalidEmailError(req.AttendeeEmail)
	}

	start := req.Start
	if start.IsZero() {
		start = time.Now().Add(defaultLeadTime)
	}
	end := req.End
	if end.IsZero() {
		end = start.Add(defaultDuration)
	}
	if !end.After(start) {
		return nil, model.NewInvalidTimeRangeError()
	}

	organizer, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if organizer == nil {
		return nil, model.NewUserNotFoundError()
	}

	accessToken, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNoCredentials) {
			return nil, model.NewNotAuthorizedError()
		}
		return nil, model.NewUpstreamFailedError(err.Error())
	}

	created, err := s.calendar.InsertEvent(ctx, accessToken, &gcal.EventRequest{
		Summary:     req.Summary,
		Description: req.Description,
		Location:    req.Location,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
		Attendees:   []gcal.AttendeeRequest{{Email: req.AttendeeEmail}},
		Reminders: &gcal.Reminders{
			UseDefault: false,
			Overrides: []gcal.ReminderOverride{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
		},
	})
	if err != nil {
		return nil, model.NewUpstreamFailedError(err.Error())
	}

	icsContent, err := ics.BuildInvite(&ics.Invite{
		EventID:        created.ID,
		Summary:        req.Summary,
		Description:    req.Description,
		Location:       req.Location,
		URL:            created.HTMLLink,
		Start:          start,
		End:            end,
		OrganizerName:  organizer.Name,
		OrganizerEmail: organizer.Email,
		AttendeeName:   req.AttendeeName,
		AttendeeEmail:  req.AttendeeEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build invite ics: %w", err)
	}

	if err := s.trackedRepo.Upsert(ctx, userID, created.ID, icsContent); err != nil {
		return nil, fmt.Errorf("failed to track event: %w", err)
	}

	slog.Info("booking created",
		slog.String("user_id", userID),
		slog.String("event_id", created.ID),
		slog.String("attendee_email", req.AttendeeEmail),
	)

	result := &CreateResult{
		EventID:  created.ID,
		HTMLLink: created.HTMLLink,
		ICSPath:  fmt.Sprintf("%s/api/bookings/%s/invite.ics", s.baseURL, created.ID),
		Start:    start,
		End:      end,
	}

	inviteMail := &mailer.InviteMail{
		To:          req.AttendeeEmail,
		Subject:     fmt.Sprintf("予約のご案内: %s", req.Summary),
		HTMLBody:    buildInviteBody(organizer.Name, req, start, end),
		ICSContent:  icsContent,
		ICSFilename: "invite.ics",
	}
	if err := s.sender.SendInvite(ctx, inviteMail); err != nil {
		slog.Error("failed to send invite mail",
			slog.String("user_id", userID),
			slog.String("event_id", created.ID),
			slog.String("attendee_email", req.AttendeeEmail),
			slog.String("error", err.Error()),
		)
		return result, nil
	}

	s.metrics.RecordInviteSent()
	result.MailSent = true

	return result, nil
}

// InviteICS は追跡イベントの招待.icsコンテンツを返す。
// 追跡対象外のイベントIDの場合はEVENT_NOT_TRACKEDエラーを返す。
func (s *Service) InviteICS(ctx context.Context, userID, eventID string) (string, error) {
	content, ok, err := s.trackedRepo.FindContent(ctx, userID, eventID)
	if err != nil {
		return "", fmt.Errorf("failed to load invite ics: %w", err)
	}
	if !ok {
		return "", model.NewEventNotTrackedError(eventID)
	}
	return content, nil
}

// buildInviteBody は招待メールのHTML本文を組み立てる。
// 説明文はユーザー入力のため、埋め込み前にサニタイズする。
func buildInviteBody(organizerName string, req *CreateRequest, start, end time.Time) string {
	body := fmt.Sprintf(
		"<p>%sさんから予定の招待が届いています。</p><h2>%s</h2><p>%s 〜 %s</p>",
		mailer.Sanitize(organizerName),
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
	body += "<p>添付の招待ファイルからカレンダーに追加できます。</p>"
	return body
}
