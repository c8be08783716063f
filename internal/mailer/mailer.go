// Package mailer はSMTPによる招待メール送信を提供する。
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// calendarContentType は招待本体のMIMEタイプ。method=REQUESTにより
// メールクライアントがRSVPボタン付きで表示する。
const calendarContentType = mail.ContentType("text/calendar; charset=utf-8; method=REQUEST")

// InviteMail は招待メール1通の内容を表す。
type InviteMail struct {
	To          string
	Subject     string
	HTMLBody    string
	ICSContent  string
	ICSFilename string
}

// Sender は招待メール送信のインターフェース。
type Sender interface {
	SendInvite(ctx context.Context, m *InviteMail) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPSender はgo-mailによるSMTP送信の実装。
// .icsは本文のalternativeパートと添付ファイルの両方として付与する
// （クライアントによって解釈する側が異なるため）。
type SMTPSender struct {
	config SMTPConfig
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config}
}

// SendInvite は招待メールを送信する。
func (s *SMTPSender) SendInvite(ctx context.Context, m *InviteMail) error {
	msg := mail.NewMsg()
	if err := msg.From(s.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTMLBody)
	msg.AddAlternativeString(calendarContentType, m.ICSContent)

	filename := m.ICSFilename
	if filename == "" {
		filename = "invite.ics"
	}
	msg.AttachReader(filename, strings.NewReader(m.ICSContent),
		mail.WithFileContentType(calendarContentType))

	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if s.config.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.User),
			mail.WithPassword(s.config.Password),
		)
	}

	client, err := mail.NewClient(s.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send invite mail: %w", err)
	}

	return nil
}

// compile-time interface check
var _ Sender = (*SMTPSender)(nil)
