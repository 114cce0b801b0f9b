package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// VerificationCodeNotification is handed to the notification channel right
// after a code is stored. Recipient is the e-mail part of the owner key.
type VerificationCodeNotification struct {
	OwnerKey  string
	Purpose   VerificationPurpose
	Recipient string
	Code      string
	ExpiresAt time.Time
}

type VerificationCodeNotifier interface {
	SendVerificationCode(ctx context.Context, notification VerificationCodeNotification) error
}

// DevVerificationCodeNotifier writes codes to the log. Local environments only.
type DevVerificationCodeNotifier struct {
	logger *slog.Logger
}

func NewDevVerificationCodeNotifier(logger *slog.Logger) *DevVerificationCodeNotifier {
	return &DevVerificationCodeNotifier{logger: logger}
}

func (n *DevVerificationCodeNotifier) SendVerificationCode(ctx context.Context, notification VerificationCodeNotification) error {
	n.logger.InfoContext(ctx, "verification code issued",
		"purpose", string(notification.Purpose),
		"recipient", notification.Recipient,
		"expires_at", notification.ExpiresAt,
		"code", notification.Code,
	)
	return nil
}

// DefaultSMTPTimeout bounds one delivery from dial to QUIT.
const DefaultSMTPTimeout = 10 * time.Second

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPVerificationCodeNotifier delivers codes as plain-text e-mail. A relay
// that stalls is abandoned after the configured timeout, so code requests
// never wait on it longer than that.
type SMTPVerificationCodeNotifier struct {
	settings SMTPSettings
	send     sendMailFunc
}

func NewSMTPVerificationCodeNotifier(settings SMTPSettings) *SMTPVerificationCodeNotifier {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultSMTPTimeout
	}
	return &SMTPVerificationCodeNotifier{settings: settings, send: sendMailContext}
}

func (n *SMTPVerificationCodeNotifier) SendVerificationCode(ctx context.Context, notification VerificationCodeNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(notification.Recipient)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid notification recipient")
	}
	var auth smtp.Auth
	if n.settings.Username != "" {
		auth = smtp.PlainAuth("", n.settings.Username, n.settings.Password, n.settings.Host)
	}
	addr := net.JoinHostPort(n.settings.Host, strconv.Itoa(n.settings.Port))
	msg := n.message(to, notification)

	ctx, cancel := context.WithTimeout(ctx, n.settings.Timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- n.send(ctx, addr, auth, n.settings.From, []string{to}, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send verification mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send verification mail: %w", ctx.Err())
	}
}

// sendMailContext is smtp.SendMail with the connection bound to ctx: the
// deadline applies to every read and write, and cancellation unblocks I/O.
func sendMailContext(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp relay: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp relay does not support AUTH")
		}
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (n *SMTPVerificationCodeNotifier) message(to string, notification VerificationCodeNotification) []byte {
	subject := "Your verification code"
	if notification.Purpose == PurposePasswordReset {
		subject = "Your password reset code"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.settings.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "Your code is %s.\r\n", notification.Code)
	fmt.Fprintf(&b, "It expires at %s.\r\n", notification.ExpiresAt.UTC().Format(time.RFC1123))
	return []byte(b.String())
}
