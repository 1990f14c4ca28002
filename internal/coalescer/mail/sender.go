// Package mail implements the Email Sender side of the Delivery
// Coalescer's outbox (spec.md §4.7 "Send path", §6 "SMTP").
package mail

import "context"

// Message is a multi-part email ready to send.
type Message struct {
	From      string
	To        string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Sender delivers a rendered Message. Implementations: SMTPSender (plain
// SMTP+TLS) and SESSender (AWS SES v2).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
