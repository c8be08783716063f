package webhook

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/model"
)

// --- モック定義 ---

type mockResolver struct {
	findUserIDByChannelFn func(ctx context.Context, channelID string) (string, error)
	calls                 int
}

func (m *mockResolver) FindUserIDByChannel(ctx context.Context, channelID string) (string, error) {
	m.calls++
	if m.findUserIDByChannelFn != nil {
		return m.findUserIDByChannelFn(ctx, channelID)
	}
	return "", nil
}

type mockCleaner struct {
	clearByChannelFn func(ctx context.Context, channelID string) error
	cleared          []string
}

func (m *mockCleaner) ClearByChannel(ctx context.Context, channelID string) error {
	m.cleared = append(m.cleared, channelID)
	if m.clearByChannelFn != nil {
		return m.clearByChannelFn(ctx, channelID)
	}
	return nil
}

type mockTrackedFilter struct {
	filterTrackedFn func(ctx context.Context, userID string, candidateIDs []string) ([]string, error)
}

func (m *mockTrackedFilter) FilterTracked(ctx context.Context, userID string, candidateIDs []string) ([]string, error) {
	if m.filterTrackedFn != nil {
		return m.filterTrackedFn(ctx, userID, candidateIDs)
	}
	return nil, nil
}

type mockTokenProvider struct {
	accessTokenFn func(ctx context.Context, userID string) (string, error)
	calls         int
}

func (m *mockTokenProvider) AccessToken(ctx context.Context, userID string) (string, error) {
	m.calls++
	if m.accessTokenFn != nil {
		return m.accessTokenFn(ctx, userID)
	}
	return "test-token", nil
}

type mockCalendarAPI struct {
	listUpdatedEventsFn func(ctx context.Context, accessToken string, since time.Time) ([]*gcal.Event, error)
	calls               int
}

func (m *mockCalendarAPI) ListUpdatedEvents(ctx context.Context, accessToken string, since time.Time) ([]*gcal.Event, error) {
	m.calls++
	if m.listUpdatedEventsFn != nil {
		return m.listUpdatedEventsFn(ctx, accessToken, since)
	}
	return nil, nil
}

type mockSink struct {
	publishFn func(ctx context.Context, delta *model.AttendeeStatus) error
	published []model.AttendeeStatus
}

func (m *mockSink) Publish(ctx context.Context, delta *model.AttendeeStatus) error {
	m.published = append(m.published, *delta)
	if m.publishFn != nil {
		return m.publishFn(ctx, delta)
	}
	return nil
}

type mockMetrics struct {
	notifications []string
	correlations  []string
	deltaCounts   []int
	latencies     []time.Duration
}

func (m *mockMetrics) RecordNotification(resourceState string) {
	m.notifications = append(m.notifications, resourceState)
}

func (m *mockMetrics) RecordCorrelation(outcome string) {
	m.correlations = append(m.correlations, outcome)
}

func (m *mockMetrics) RecordDeltas(count int) {
	m.deltaCounts = append(m.deltaCounts, count)
}

func (m *mockMetrics) RecordUpstreamLatency(duration time.Duration) {
	m.latencies = append(m.latencies, duration)
}

// --- compile-time interface checks ---
var (
	_ ChannelResolver = (*mockResolver)(nil)
	_ WatchCleaner    = (*mockCleaner)(nil)
	_ TrackedFilter   = (*mockTrackedFilter)(nil)
	_ TokenProvider   = (*mockTokenProvider)(nil)
	_ CalendarAPI     = (*mockCalendarAPI)(nil)
	_ StatusSink      = (*mockSink)(nil)
	_ MetricsRecorder = (*mockMetrics)(nil)
)

type correlatorMocks struct {
	resolver *mockResolver
	cleaner  *mockCleaner
	tracked  *mockTrackedFilter
	tokens   *mockTokenProvider
	calendar *mockCalendarAPI
	sink     *mockSink
	metrics  *mockMetrics
}

func newTestCorrelator(m *correlatorMocks) *Correlator {
	return NewCorrelator(
		m.resolver, m.cleaner, m.tracked, m.tokens, m.calendar,
		m.sink, m.metrics, slog.Default(), 15*time.Minute,
	)
}

func defaultMocks() *correlatorMocks {
	return &correlatorMocks{
		resolver: &mockResolver{},
		cleaner:  &mockCleaner{},
		tracked:  &mockTrackedFilter{},
		tokens:   &mockTokenProvider{},
		calendar: &mockCalendarAPI{},
		sink:     &mockSink{},
		metrics:  &mockMetrics{},
	}
}

// --- テスト ---

func TestProcess_SyncState_NoopWithoutLookups(t *testing.T) {
	m := defaultMocks()
	c := newTestCorrelator(m)

	report, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateSync,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(report.Deltas) != 0 {
		t.Errorf("expected no deltas, got %d", len(report.Deltas))
	}

	// syncは疎通確認であり、解決もupstream取得も行わないこと
	if m.resolver.calls != 0 {
		t.Errorf("resolver should not be called, got %d calls", m.resolver.calls)
	}
	if m.calendar.calls != 0 {
		t.Errorf("calendar should not be called, got %d calls", m.calendar.calls)
	}
}

func TestProcess_NotExists_ClearsWatchWithoutUpstreamFetch(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "user-1", nil
	}
	c := newTestCorrelator(m)

	_, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-gone",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateNotExists,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(m.cleaner.cleared) != 1 || m.cleaner.cleared[0] != "ch-gone" {
		t.Errorf("cleared channels = %v, want [ch-gone]", m.cleaner.cleared)
	}
	// not_existsではトークン解決もイベント取得も行わないこと
	if m.tokens.calls != 0 {
		t.Errorf("token provider should not be called, got %d calls", m.tokens.calls)
	}
	if m.calendar.calls != 0 {
		t.Errorf("calendar should not be called, got %d calls", m.calendar.calls)
	}
}

func TestProcess_UnknownChannel_ReturnsErrChannelNotFoundWithoutMutation(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "", nil // どのユーザーにも解決できない
	}
	c := newTestCorrelator(m)

	_, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-unknown",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateExists,
	})
	if !errors.Is(err, model.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}

	// 状態変更もupstream取得も発生しないこと
	if len(m.cleaner.cleared) != 0 {
		t.Errorf("no channels should be cleared, got %v", m.cleaner.cleared)
	}
	if m.calendar.calls != 0 {
		t.Errorf("calendar should not be called, got %d calls", m.calendar.calls)
	}
	if len(m.sink.published) != 0 {
		t.Errorf("no deltas should be published, got %d", len(m.sink.published))
	}
}

func TestProcess_NoCredentials_ReturnsErrNoCredentials(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "user-1", nil
	}
	m.tokens.accessTokenFn = func(ctx context.Context, userID string) (string, error) {
		return "", model.ErrNoCredentials
	}
	c := newTestCorrelator(m)

	_, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateExists,
	})
	if !errors.Is(err, model.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}

	if m.calendar.calls != 0 {
		t.Errorf("calendar should not be called, got %d calls", m.calendar.calls)
	}
}

func TestProcess_UpstreamFailure_ReturnsErrUpstreamFetch(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "user-1", nil
	}
	m.calendar.listUpdatedEventsFn = func(ctx context.Context, accessToken string, since time.Time) ([]*gcal.Event, error) {
		return nil, errors.New("google api returned status 503")
	}
	c := newTestCorrelator(m)

	_, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateExists,
	})
	if !errors.Is(err, model.ErrUpstreamFetch) {
		t.Fatalf("expected ErrUpstreamFetch, got %v", err)
	}
	if len(m.sink.published) != 0 {
		t.Errorf("no deltas should be published, got %d", len(m.sink.published))
	}
}

// 追跡対象(e1,e2)と更新イベント(e2,e3)の積集合はe2のみ。
// デルタはe2の出席者ごとに1件ずつ出力されること。
func TestProcess_Exists_IntersectsTrackedWithUpdated(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "user-1", nil
	}
	m.calendar.listUpdatedEventsFn = func(ctx context.Context, accessToken string, since time.Time) ([]*gcal.Event, error) {
		return []*gcal.Event{
			{
				ID:      "e2",
				Summary: "tracked booking",
				Attendees: []gcal.Attendee{
					{Email: "alice@example.com", ResponseStatus: "accepted"},
					{Email: "bob@example.com", ResponseStatus: "declined"},
				},
			},
			{
				ID:      "e3",
				Summary: "unrelated event",
				Attendees: []gcal.Attendee{
					{Email: "carol@example.com", ResponseStatus: "accepted"},
				},
			},
		}, nil
	}
	m.tracked.filterTrackedFn = func(ctx context.Context, userID string, candidateIDs []string) ([]string, error) {
		// 追跡対象はe1とe2。候補(e2,e3)との積集合はe2のみ。
		var result []string
		for _, id := range candidateIDs {
			if id == "e1" || id == "e2" {
				result = append(result, id)
			}
		}
		return result, nil
	}
	c := newTestCorrelator(m)

	report, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateExists,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if report.UserID != "user-1" {
		t.Errorf("report userID = %q, want %q", report.UserID, "user-1")
	}
	if len(report.Deltas) != 2 {
		t.Fatalf("expected 2 deltas (one per attendee of e2), got %d", len(report.Deltas))
	}
	for _, d := range report.Deltas {
		if d.EventID != "e2" {
			t.Errorf("delta eventID = %q, want %q", d.EventID, "e2")
		}
	}
	if report.Deltas[0].AttendeeEmail != "alice@example.com" || report.Deltas[0].ResponseStatus != "accepted" {
		t.Errorf("first delta = %+v, want alice/accepted", report.Deltas[0])
	}
	if report.Deltas[1].AttendeeEmail != "bob@example.com" || report.Deltas[1].ResponseStatus != "declined" {
		t.Errorf("second delta = %+v, want bob/declined", report.Deltas[1])
	}

	// シンクにも同じデルタが渡されること
	if len(m.sink.published) != 2 {
		t.Errorf("published deltas = %d, want 2", len(m.sink.published))
	}
}

func TestProcess_Exists_MissingResponseStatusFallsBackToUnknown(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "user-1", nil
	}
	m.calendar.listUpdatedEventsFn = func(ctx context.Context, accessToken string, since time.Time) ([]*gcal.Event, error) {
		return []*gcal.Event{
			{
				ID:      "e1",
				Summary: "booking",
				Attendees: []gcal.Attendee{
					{Email: "dave@example.com"}, // responseStatus省略
				},
			},
		}, nil
	}
	m.tracked.filterTrackedFn = func(ctx context.Context, userID string, candidateIDs []string) ([]string, error) {
		return candidateIDs, nil
	}
	c := newTestCorrelator(m)

	report, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateExists,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(report.Deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(report.Deltas))
	}
	if report.Deltas[0].ResponseStatus != model.ResponseStatusUnknown {
		t.Errorf("responseStatus = %q, want %q", report.Deltas[0].ResponseStatus, model.ResponseStatusUnknown)
	}
}

func TestProcess_Exists_NoUpdatedEvents_ReturnsEmptyReport(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "user-1", nil
	}
	c := newTestCorrelator(m)

	report, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateExists,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(report.Deltas) != 0 {
		t.Errorf("expected no deltas, got %d", len(report.Deltas))
	}
}

// シンクの失敗はデルタ単位で記録され、通知処理全体は成功すること。
func TestProcess_SinkFailure_DoesNotFailNotification(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "user-1", nil
	}
	m.calendar.listUpdatedEventsFn = func(ctx context.Context, accessToken string, since time.Time) ([]*gcal.Event, error) {
		return []*gcal.Event{
			{
				ID: "e1",
				Attendees: []gcal.Attendee{
					{Email: "alice@example.com", ResponseStatus: "accepted"},
				},
			},
		}, nil
	}
	m.tracked.filterTrackedFn = func(ctx context.Context, userID string, candidateIDs []string) ([]string, error) {
		return candidateIDs, nil
	}
	m.sink.publishFn = func(ctx context.Context, delta *model.AttendeeStatus) error {
		return errors.New("nats publish failed")
	}
	c := newTestCorrelator(m)

	report, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: model.ResourceStateExists,
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(report.Deltas) != 1 {
		t.Errorf("expected 1 delta in report despite sink failure, got %d", len(report.Deltas))
	}
}

func TestProcess_UnknownResourceState_Noop(t *testing.T) {
	m := defaultMocks()
	c := newTestCorrelator(m)

	report, err := c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-1",
		ResourceID:    "res-1",
		ResourceState: "something_else",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(report.Deltas) != 0 {
		t.Errorf("expected no deltas, got %d", len(report.Deltas))
	}
	if m.resolver.calls != 0 {
		t.Errorf("resolver should not be called, got %d calls", m.resolver.calls)
	}
}

func TestProcess_RecordsMetricsByOutcome(t *testing.T) {
	m := defaultMocks()
	m.resolver.findUserIDByChannelFn = func(ctx context.Context, channelID string) (string, error) {
		return "", nil
	}
	c := newTestCorrelator(m)

	c.Process(context.Background(), model.Notification{
		ChannelID:     "ch-unknown",
		ResourceState: model.ResourceStateExists,
	})

	if len(m.metrics.notifications) != 1 || m.metrics.notifications[0] != model.ResourceStateExists {
		t.Errorf("notifications = %v, want [exists]", m.metrics.notifications)
	}
	if len(m.metrics.correlations) != 1 || m.metrics.correlations[0] != OutcomeChannelNotFound {
		t.Errorf("correlations = %v, want [%s]", m.metrics.correlations, OutcomeChannelNotFound)
	}
}
