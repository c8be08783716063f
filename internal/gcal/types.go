package gcal

import "time"

// EventDateTime はイベントの開始/終了時刻を表す。
type EventDateTime struct {
	DateTime string `json:"dateTime,omitempty"` // RFC3339
	TimeZone string `json:"timeZone,omitempty"`
}

// AttendeeRequest はイベント作成時の出席者指定。
type AttendeeRequest struct {
	Email string `json:"email"`
}

// ReminderOverride はリマインダー1件の指定。
type ReminderOverride struct {
	Method  string `json:"method"` // "email" or "popup"
	Minutes int    `json:"minutes"`
}

// Reminders はイベントのリマインダー設定。
type Reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides,omitempty"`
}

// EventRequest はイベント作成リクエストのボディ。
type EventRequest struct {
	Summary     string            `json:"summary"`
	Description string            `json:"description,omitempty"`
	Location    string            `json:"location,omitempty"`
	Start       *EventDateTime    `json:"start"`
	End         *EventDateTime    `json:"end"`
	Attendees   []AttendeeRequest `json:"attendees,omitempty"`
	Reminders   *Reminders        `json:"reminders,omitempty"`
}

// Attendee はイベントの出席者とそのRSVP状態を表す。
// responseStatusはprovider側で省略されることがある。
type Attendee struct {
	Email          string `json:"email"`
	ResponseStatus string `json:"responseStatus,omitempty"` // needsAction, declined, tentative, accepted
}

// Event はGoogle Calendar上のイベントを表す。
type Event struct {
	ID        string         `json:"id"`
	Summary   string         `json:"summary,omitempty"`
	HTMLLink  string         `json:"htmlLink,omitempty"`
	Updated   string         `json:"updated,omitempty"`
	Start     *EventDateTime `json:"start,omitempty"`
	End       *EventDateTime `json:"end,omitempty"`
	Attendees []Attendee     `json:"attendees,omitempty"`
}

// eventList はevents.listのレスポンス。
type eventList struct {
	Items []*Event `json:"items"`
}

// watchRequest はevents.watchのリクエストボディ。
type watchRequest struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

// watchResponse はevents.watchのレスポンス。
type watchResponse struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
	Expiration string `json:"expiration,omitempty"` // エポックミリ秒の文字列
}

// stopRequest はchannels.stopのリクエストボディ。
type stopRequest struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
}

// WatchResult はwatch登録の結果を表す。
type WatchResult struct {
	ChannelID  string
	ResourceID string
	Expiry     time.Time
}
