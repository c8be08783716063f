package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	Ping() error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック
	HealthChecker HealthChecker

	// メトリクス（/metrics。nilの場合はルートを設定しない）
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 予約
	BookingService BookingServiceInterface

	// スタンドアロン招待
	InviteService InviteServiceInterface

	// webhook
	Dispatcher NotificationEnqueuer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）、webhook受信、回答ページはミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	// CORS ミドルウェアを全ルートに適用
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	bookingHandler := NewBookingHandler(deps.BookingService)
	inviteHandler := NewInviteHandler(deps.InviteService)
	webhookHandler := NewWebhookHandler(deps.Dispatcher)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Ping(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// Googleプッシュ通知の受信（providerからの呼び出しのためセッションなし）
	r.Post("/webhooks/google/calendar", webhookHandler.Receive)

	// 招待メールのリンクからの回答ページ（受信者は未認証）
	r.Get("/invites/respond/{eventID}", inviteHandler.Respond)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 予約管理
		r.Route("/api/bookings", func(r chi.Router) {
			r.Post("/", bookingHandler.CreateBooking)
			r.Get("/{eventID}/invite.ics", bookingHandler.DownloadInviteICS)
		})

		// スタンドアロン招待
		r.Route("/api/invites", func(r chi.Router) {
			// POST /api/invites - 招待送信（送信専用レート制限を追加）
			r.With(deps.RateLimiter.InviteMiddleware()).Post("/", inviteHandler.SendInvite)

			r.Get("/{eventID}/responses", inviteHandler.ListResponses)
		})
	})

	return r
}
