package mailer

import "context"

// Sender delivers one email with a text and an HTML body.
type Sender interface {
	Send(ctx context.Context, toEmail, subject, text, html string) error
}
