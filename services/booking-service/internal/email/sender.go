package email

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from mail.Address
}

func NewSMTPSender(host, port, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "GoBarber <no-reply@gobarber.local>"
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		addr = &mail.Address{Address: from}
	}
	return &SMTPSender{
		addr: net.JoinHostPort(strings.TrimSpace(host), strings.TrimSpace(port)),
		from: *addr,
	}
}

// Send delivers msg. net/smtp has no context support, so the deadline is
// only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return fmt.Errorf("email: empty recipient")
	}
	to := mail.Address{Name: msg.ToName, Address: msg.ToEmail}
	raw := buildMessage(s.from.String(), to.String(), msg.Subject, msg.Body, time.Now().UTC())
	return smtp.SendMail(s.addr, nil, s.from.Address, []string{msg.ToEmail}, []byte(raw))
}

func buildMessage(from, to, subject, body string, date time.Time) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		date.Format(time.RFC1123Z),
		body,
	)
}
