package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/hitoshi/bookman/internal/model"
)

// LogSink はRSVPデルタを構造化ログとして出力するシンク。
// NATSが構成されていない環境でのデフォルト。
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink はLogSinkを生成する。
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish はデルタをログに出力する。
func (s *LogSink) Publish(_ context.Context, delta *model.AttendeeStatus) error {
	s.logger.Info("attendee rsvp status",
		slog.String("user_id", delta.UserID),
		slog.String("event_id", delta.EventID),
		slog.String("event_summary", delta.EventSummary),
		slog.String("attendee_email", delta.AttendeeEmail),
		slog.String("response_status", delta.ResponseStatus),
	)
	return nil
}

// rsvpSubjectPrefix はRSVPデルタを発行するJetStreamサブジェクトのプレフィックス。
const rsvpSubjectPrefix = "booking.rsvp."

// rsvpStreamName はRSVPデルタ用のJetStreamストリーム名。
const rsvpStreamName = "BOOKING_RSVP"

// JetStreamSink はRSVPデルタをNATS JetStreamに発行するシンク。
// サブジェクトはbooking.rsvp.<userID>で、下流のコンシューマが
// ユーザー単位で購読できる。
type JetStreamSink struct {
	js nats.JetStreamContext
}

// NewJetStreamSink はJetStreamSinkを生成し、ストリームを保証する。
func NewJetStreamSink(js nats.JetStreamContext) (*JetStreamSink, error) {
	if _, err := js.StreamInfo(rsvpStreamName); err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to look up rsvp stream: %w", err)
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:      rsvpStreamName,
			Subjects:  []string{rsvpSubjectPrefix + ">"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		}); addErr != nil {
			return nil, fmt.Errorf("failed to create rsvp stream: %w", addErr)
		}
	}
	return &JetStreamSink{js: js}, nil
}

// Publish はデルタをJSONでJetStreamに発行する。
func (s *JetStreamSink) Publish(_ context.Context, delta *model.AttendeeStatus) error {
	payload, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("failed to marshal attendee status: %w", err)
	}

	if _, err := s.js.Publish(rsvpSubjectPrefix+delta.UserID, payload); err != nil {
		return fmt.Errorf("failed to publish attendee status: %w", err)
	}

	return nil
}

// compile-time interface checks
var (
	_ StatusSink = (*LogSink)(nil)
	_ StatusSink = (*JetStreamSink)(nil)
)
