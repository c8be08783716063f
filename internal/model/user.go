// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Credential はユーザーのGoogle Calendar認可情報を表す。
// AccessTokenは短命で空の場合がある。RefreshTokenは長命で、
// upstream呼び出しの前に都度アクセストークンへ引き換える。
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	UpdatedAt    time.Time
}

// WatchChannel はユーザーのカレンダーに対するプッシュ通知購読を表す。
// ユーザーごとに同時にアクティブなチャネルは最大1つ（再登録で上書き）。
type WatchChannel struct {
	UserID     string
	ChannelID  string
	ResourceID string
	Expiry     time.Time
	CreatedAt  time.Time
}
