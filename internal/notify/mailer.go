package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"app/internal/config"

	"github.com/jordan-wright/email"
)

// SMTP経由でメールを送るNotifier実装
type Mailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewMailer(cfg config.Config) *Mailer {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &Mailer{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		auth: auth,
		from: cfg.MailFrom,
	}
}

func (m *Mailer) SendOrderConfirmation(ctx context.Context, to string, mail OrderMail) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ご注文ありがとうございます。注文番号: %d\n\n", mail.OrderID)
	for _, it := range mail.Items {
		fmt.Fprintf(&b, "  %s × %d  %d\n", it.Name, it.Quantity, it.Price*it.Quantity)
	}
	fmt.Fprintf(&b, "\n合計: %d %s\n", mail.TotalPrice, mail.Currency)

	return m.send(to, fmt.Sprintf("ご注文確認（注文番号 %d）", mail.OrderID), b.String())
}

func (m *Mailer) SendStatusUpdate(ctx context.Context, to string, mail StatusMail) error {
	body := fmt.Sprintf("注文番号 %d のステータスが %s に変わりました。\n", mail.OrderID, mail.NewStatus)
	return m.send(to, fmt.Sprintf("ご注文の更新（注文番号 %d）", mail.OrderID), body)
}

func (m *Mailer) send(to, subject, body string) error {
	e := email.NewEmail()
	e.From = m.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)
	return e.Send(m.addr, m.auth)
}
