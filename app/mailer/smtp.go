package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/config"
)

// SendFunc hands a rendered message to the SMTP relay.
type SendFunc func(cfg config.SMTPConfig, from string, to []string, msg []byte) error

type SMTPOption func(*SMTPDispatcher)

func WithSendFunc(send SendFunc) SMTPOption {
	return func(d *SMTPDispatcher) {
		if send != nil {
			d.send = send
		}
	}
}

func WithClock(now func() time.Time) SMTPOption {
	return func(d *SMTPDispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

type SMTPDispatcher struct {
	smtp            config.SMTPConfig
	frontendURL     string
	verificationTTL time.Duration
	resetTTL        time.Duration
	send            SendFunc
	now             func() time.Time
}

func NewSMTPDispatcher(cfg *config.Config, opts ...SMTPOption) *SMTPDispatcher {
	d := &SMTPDispatcher{
		smtp:            cfg.SMTP,
		frontendURL:     cfg.App.FrontendURL,
		verificationTTL: cfg.Tokens.VerificationTTL,
		resetTTL:        cfg.Tokens.ResetTTL,
		send:            sendMail,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDispatcher picks the SMTP dispatcher when a relay is configured and the
// disabled one otherwise.
func NewDispatcher(cfg *config.Config) Dispatcher {
	if !cfg.SMTP.Enabled() {
		logrus.Warn("SMTP_HOST or SMTP_FROM not set, outgoing email is disabled")
		return NewDisabledDispatcher()
	}
	return NewSMTPDispatcher(cfg)
}

func (d *SMTPDispatcher) SendVerification(ctx context.Context, acc *entity.Account, token string) bool {
	return d.deliver(ctx, acc, KindVerification, d.link("/verify-email", token), d.verificationTTL)
}

func (d *SMTPDispatcher) SendPasswordReset(ctx context.Context, acc *entity.Account, token string) bool {
	return d.deliver(ctx, acc, KindPasswordReset, d.link("/reset-password", token), d.resetTTL)
}

func (d *SMTPDispatcher) SendEmailChangeVerification(ctx context.Context, acc *entity.Account, token string) bool {
	return d.deliver(ctx, acc, KindEmailChange, d.link("/verify-email", token), d.verificationTTL)
}

func (d *SMTPDispatcher) link(path, token string) string {
	return d.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (d *SMTPDispatcher) deliver(ctx context.Context, acc *entity.Account, kind Kind, link string, ttl time.Duration) bool {
	logger := logrus.WithFields(logrus.Fields{
		"account_id": acc.ID,
		"kind":       string(kind),
	})

	if !acc.HasEmail() {
		logger.Warn("account has no email address, message skipped")
		return false
	}
	if err := ctx.Err(); err != nil {
		logger.WithError(err).Warn("email delivery cancelled")
		return false
	}

	msg, err := render(kind, acc.Email.String, messageData{
		Username:  acc.Username,
		Link:      link,
		ExpiresIn: humanizeDuration(ttl),
		Year:      d.now().Year(),
	})
	if err != nil {
		logger.WithError(err).Error("failed to render email")
		return false
	}

	raw, err := buildMIME(d.fromAddress(), msg)
	if err != nil {
		logger.WithError(err).Error("failed to encode email")
		return false
	}

	if err = d.send(d.smtp, d.smtp.From, []string{msg.To}, raw); err != nil {
		logger.WithError(err).Error("failed to send email")
		return false
	}

	logger.Info("email sent")
	return true
}

func (d *SMTPDispatcher) fromAddress() string {
	if d.smtp.FromName == "" {
		return d.smtp.From
	}
	return (&mail.Address{Name: d.smtp.FromName, Address: d.smtp.From}).String()
}

func buildMIME(from string, msg Message) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", p.contentType)
		header.Set("Content-Transfer-Encoding", "8bit")
		w, err := writer.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err = w.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n", writer.Boundary())
	buf.WriteString("\r\n")
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func sendMail(cfg config.SMTPConfig, from string, to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	var client *smtp.Client
	if cfg.UseSSL {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
		if err != nil {
			return err
		}
		if client, err = smtp.NewClient(conn, cfg.Host); err != nil {
			_ = conn.Close()
			return err
		}
	} else {
		var err error
		if client, err = smtp.Dial(addr); err != nil {
			return err
		}
		if cfg.UseTLS {
			if err = client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				_ = client.Close()
				return err
			}
		}
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
