// Package mail sends plain-text notification email over SMTP.
package mail

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"time"
)

type Config struct {
	Server     string
	Port       int
	User       string
	Pass       string
	From       string
	FromHeader string
}

// Mailer is able to send email.
type Mailer struct {
	config Config
}

// New creates a Mailer.
func New(config Config) *Mailer {
	return &Mailer{config: config}
}

// newHeader generates a Header with from and date pre-populated.
func (m *Mailer) newHeader() mail.Header {
	h := mail.Header{}
	h["From"] = []string{m.config.FromHeader}
	h["Date"] = []string{time.Now().Truncate(time.Second).UTC().String()}
	return h
}

func toBytes(h mail.Header) []byte {
	var b []byte
	for k, v := range h {
		b = append(b, []byte(k+": "+v[0]+"\r\n")...)
	}
	b = append(b, []byte("\r\n")...)
	return b
}

// Send delivers an ascii email to "to". The template context is accepted for
// interface parity with richer mail backends; the plain SMTP path only uses
// subject and body.
func (m *Mailer) Send(ctx context.Context, to, subject, body string, tctx map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = tctx

	header := m.newHeader()
	header["To"] = []string{to}
	header["Subject"] = []string{subject}

	auth := smtp.PlainAuth("", m.config.User, m.config.Pass, m.config.Server)
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	return smtp.SendMail(addr, auth, m.config.From, []string{to}, append(toBytes(header), []byte(body)...))
}
