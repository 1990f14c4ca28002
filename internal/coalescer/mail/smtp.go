package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"time"
)

// SMTPSender sends mail over standard SMTP+TLS with no custom
// extensions (spec.md §6). Multi-part text/plain + text/html, UTF-8
// headers.
type SMTPSender struct {
	host string
	port int
	user string
	pass string

	dialTimeout time.Duration
}

// NewSMTPSender builds an SMTPSender.
func NewSMTPSender(host string, port int, user, pass string) *SMTPSender {
	return &SMTPSender{host: host, port: port, user: user, pass: pass, dialTimeout: 10 * time.Second}
}

// Send implements Sender. Outbound SMTP calls carry a 30s deadline
// (spec.md §5).
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	body := buildMultipart(msg)

	done := make(chan error, 1)
	go func() { done <- sendMailTLS(addr, s.host, s.user, s.pass, msg.From, []string{msg.To}, body, s.dialTimeout) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("mail: smtp send cancelled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

func buildMultipart(msg Message) []byte {
	boundary := "sentrycore-boundary"
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/alternative; boundary=%s\r\n\r\n"+
			"--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\n"+
			"--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n\r\n"+
			"--%s--\r\n",
		mime.QEncoding.Encode("UTF-8", msg.From), msg.To, mime.QEncoding.Encode("UTF-8", msg.Subject), boundary,
		boundary, msg.TextBody,
		boundary, msg.HTMLBody,
		boundary,
	))
}

// sendMailTLS connects to an SMTP server and enforces STARTTLS before
// authenticating, preventing credentials from crossing the wire
// unencrypted.
func sendMailTLS(addr, host, user, pass, from string, recipients []string, msg []byte, dialTimeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: new client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("mail: hello: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("mail: server %s does not support STARTTLS, refusing to send credentials", host)
	}
	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("mail: starttls: %w", err)
	}

	if user != "" {
		if err := client.Auth(smtp.PlainAuth("", user, pass, host)); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail: mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mail: rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("mail: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: close data: %w", err)
	}

	return client.Quit()
}
