// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// CredentialRepository はGoogle認可情報の永続化インターフェース。
type CredentialRepository interface {
	// Upsert はユーザーの認可情報を保存する。既存レコードは上書きする。
	// RefreshTokenが空の場合は既存のRefreshTokenを保持する
	// （Googleは再認可時にrefresh_tokenを返さないことがある）。
	Upsert(ctx context.Context, cred *model.Credential) error

	// FindByUserID は指定ユーザーの認可情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)
}

// WatchRepository はカレンダーwatchチャネルの永続化インターフェース。
// ユーザーごとにアクティブなチャネルは最大1つ（Setで無条件上書き）。
type WatchRepository interface {
	// Set はユーザーのwatchチャネルを無条件に上書きする。
	// 旧チャネルIDは以後FindUserIDByChannelで解決できなくなる。
	Set(ctx context.Context, userID, channelID, resourceID string, expiry time.Time) error

	// FindUserIDByChannel はチャネルIDからオーナーのユーザーIDを解決する。
	// 見つからない場合は空文字列を返す。
	FindUserIDByChannel(ctx context.Context, channelID string) (string, error)

	// FindByUserID は指定ユーザーのwatchチャネルを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.WatchChannel, error)

	// ClearByChannel はチャネルIDでwatch登録を削除する。チャネル未知の場合は何もしない。
	ClearByChannel(ctx context.Context, channelID string) error

	// ListExpiring は期限がdeadline以前のwatchチャネル一覧を返す。
	ListExpiring(ctx context.Context, deadline time.Time) ([]*model.WatchChannel, error)
}

// TrackedEventRepository は追跡イベントの永続化インターフェース。
type TrackedEventRepository interface {
	// Upsert は追跡イベントを登録する。(user_id, event_id)が既存の場合は
	// ICSコンテンツのみを上書きし、重複レコードを作らない。
	Upsert(ctx context.Context, userID, eventID, icsContent string) error

	// FindContent は追跡イベントのICSコンテンツを取得する。
	// 追跡対象外の場合は空文字列とfalseを返す。副作用なし。
	FindContent(ctx context.Context, userID, eventID string) (string, bool, error)

	// FilterTracked はcandidateIDsのうちユーザーの追跡対象に含まれるものを、
	// 入力順を保ったまま返す。状態を変更しない。
	FilterTracked(ctx context.Context, userID string, candidateIDs []string) ([]string, error)
}

// InviteResponseRepository はスタンドアロン招待への回答の永続化インターフェース。
type InviteResponseRepository interface {
	// Record は回答を保存する。(event_id, attendee_email)が既存の場合は上書きする。
	Record(ctx context.Context, resp *model.InviteResponse) error

	// ListByEvent は指定イベントへの回答一覧を返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.InviteResponse, error)

	// DeleteOlderThan は指定時刻より古い回答を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
