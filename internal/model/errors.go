// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, booking, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeNotAuthorized     = "NOT_AUTHORIZED"
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeInvalidResponse   = "INVALID_RESPONSE"
	ErrCodeInvalidTimeRange  = "INVALID_TIME_RANGE"
	ErrCodeEventNotTracked   = "EVENT_NOT_TRACKED"
	ErrCodeUpstreamFailed    = "UPSTREAM_FAILED"
	ErrCodeInviteSendFailed  = "INVITE_SEND_FAILED"
	ErrCodeWatchRegistration = "WATCH_REGISTRATION_FAILED"
)

// 相関処理のエラー分類。通知1件に対して終端的であり、
// ログに記録した上で破棄される（リトライなし）。
// 呼び出し側はerrors.Isで結果を判別できる。
var (
	// ErrChannelNotFound は通知のチャネルIDがどのユーザーにも解決できないことを示す。
	ErrChannelNotFound = errors.New("watch channel not found")
	// ErrNoCredentials は解決したユーザーがリフレッシュトークンを持たないことを示す。
	ErrNoCredentials = errors.New("no refresh credential for user")
	// ErrUpstreamFetch はGoogle Calendar APIからの取得に失敗したことを示す。
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewNotAuthorizedError はGoogle認可が未完了の場合のエラーを生成する。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "Google Calendarへのアクセスが許可されていません。",
		Category: "auth",
		Action:   "先にGoogle認証を完了してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しい形式のメールアドレスを指定してください。",
	}
}

// NewInvalidResponseError は無効な回答値エラーを生成する。
func NewInvalidResponseError(response string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResponse,
		Message:  fmt.Sprintf("無効な回答です: %s", response),
		Category: "validation",
		Action:   "回答には accepted、declined、tentative のいずれかを指定してください。",
	}
}

// NewInvalidTimeRangeError は開始・終了時刻の矛盾エラーを生成する。
func NewInvalidTimeRangeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimeRange,
		Message:  "イベントの終了時刻は開始時刻より後である必要があります。",
		Category: "validation",
		Action:   "開始時刻と終了時刻を確認してください。",
	}
}

// NewEventNotTrackedError は追跡対象外イベントのエラーを生成する。
func NewEventNotTrackedError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotTracked,
		Message:  fmt.Sprintf("指定されたイベントはこのアプリケーションで作成されていません: %s", eventID),
		Category: "booking",
		Action:   "イベントIDを確認してください。",
	}
}

// NewUpstreamFailedError はGoogle Calendar API呼び出し失敗のエラーを生成する。
func NewUpstreamFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("Google Calendarの呼び出しに失敗しました: %s", reason),
		Category: "booking",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInviteSendFailedError は招待メール送信失敗のエラーを生成する。
func NewInviteSendFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInviteSendFailed,
		Message:  fmt.Sprintf("招待メールの送信に失敗しました: %s", reason),
		Category: "system",
		Action:   "SMTP設定を確認し、再度お試しください。",
	}
}

// NewWatchRegistrationError はカレンダーwatch登録失敗のエラーを生成する。
func NewWatchRegistrationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWatchRegistration,
		Message:  fmt.Sprintf("カレンダーのwatch登録に失敗しました: %s", reason),
		Category: "system",
		Action:   "WEBHOOK_URLが外部から到達可能なHTTPSのURLか確認してください。",
	}
}
