package mailer

import (
	"context"

	"github.com/cermofi/ReserveUMT/pkg/logger"
)

// DevSender logs emails instead of sending them.
type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (d *DevSender) Send(ctx context.Context, toEmail, subject, text, html string) error {
	logger.InfoContext(ctx, "📧 [DEV MAIL]",
		"to", toEmail,
		"subject", subject,
		"body", text,
	)
	return nil
}
