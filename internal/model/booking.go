// Package model はドメインモデルを定義する。
package model

import "time"

// TrackedEvent はこのアプリケーションが作成したカレンダーイベントを表す。
// RSVP相関の対象となるのはTrackedEventに登録されたイベントのみ。
// (user_id, event_id) の組み合わせで一意。再登録時はICSコンテンツを上書きする。
type TrackedEvent struct {
	UserID     string
	EventID    string // Google Calendar上のイベントID
	ICSContent string // 生成済みの招待.icsファイル内容
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Notification はGoogleからのプッシュ通知を表す。
// ペイロードは持たず、相関に必要な3フィールドのみを運ぶ（pull-after-push設計）。
type Notification struct {
	ChannelID     string
	ResourceID    string
	ResourceState string // "sync", "exists", "not_exists"
}

// 通知のresource_state値。
const (
	ResourceStateSync      = "sync"
	ResourceStateExists    = "exists"
	ResourceStateNotExists = "not_exists"
)

// AttendeeStatus は1人の出席者のRSVP状態デルタを表す。
// 相関処理の外部観測可能な出力であり、StatusSinkへ1レコードずつ渡される。
type AttendeeStatus struct {
	UserID         string    `json:"user_id"`
	EventID        string    `json:"event_id"`
	EventSummary   string    `json:"event_summary"`
	AttendeeEmail  string    `json:"attendee_email"`
	ResponseStatus string    `json:"response_status"` // accepted, declined, tentative, needsAction, unknown
	ObservedAt     time.Time `json:"observed_at"`
}

// ResponseStatusUnknown はproviderがresponseStatusを省略した場合のフォールバック値。
const ResponseStatusUnknown = "unknown"

// InviteResponse はスタンドアロン招待へのメールリンク経由の回答を表す。
// (event_id, attendee_email) の組み合わせで一意。再回答は上書き。
type InviteResponse struct {
	EventID       string
	AttendeeEmail string
	Response      string // accepted, declined, tentative
	RespondedAt   time.Time
}

// スタンドアロン招待の回答値。
const (
	InviteResponseAccepted  = "accepted"
	InviteResponseDeclined  = "declined"
	InviteResponseTentative = "tentative"
)

// ValidInviteResponse は回答値が許可された値かどうかを返す。
func ValidInviteResponse(response string) bool {
	switch response {
	case InviteResponseAccepted, InviteResponseDeclined, InviteResponseTentative:
		return true
	}
	return false
}
