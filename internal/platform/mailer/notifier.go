package mailer

import (
	"context"
	"fmt"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
)

// Notifier composes the reservation emails and hands them to a Sender.
// BaseURL is the public frontend origin the manage links point at.
type Notifier struct {
	sender  Sender
	cal     *timeutil.Calendar
	baseURL string
}

func NewNotifier(sender Sender, cal *timeutil.Calendar, baseURL string) *Notifier {
	return &Notifier{sender: sender, cal: cal, baseURL: baseURL}
}

func (n *Notifier) SendVerificationCode(ctx context.Context, email, code string) error {
	subject := "Your reservation verification code"
	text := fmt.Sprintf("Your verification code is: %s\n\nThe code expires in 10 minutes.", code)
	html := fmt.Sprintf(`
		<h2>Confirm your reservation</h2>
		<p>Your verification code is: <strong style="font-size: 24px; color: #4CAF50;">%s</strong></p>
		<p>This code will expire in 10 minutes.</p>
		<p>If you did not request a reservation, please ignore this email.</p>
	`, code)

	return n.sender.Send(ctx, email, subject, text, html)
}

func (n *Notifier) SendManageLink(ctx context.Context, email string, b *domain.Booking, editToken, emailToken string) error {
	editURL := fmt.Sprintf("%s/manage?token=%s", n.baseURL, editToken)
	listURL := fmt.Sprintf("%s/manage?email_token=%s", n.baseURL, emailToken)
	when := fmt.Sprintf("%s – %s", n.cal.FormatDateTime(b.StartTs), n.cal.FormatTime(b.EndTs))

	subject := "Your reservation is confirmed"
	text := fmt.Sprintf(
		"Your reservation for %s (%s) is confirmed.\n\nManage this reservation: %s\nAll your reservations: %s",
		when, b.Space, editURL, listURL,
	)
	html := fmt.Sprintf(`
		<h2>Reservation confirmed</h2>
		<p>%s<br>%s</p>
		<p><a href="%s" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Manage reservation</a></p>
		<p>Or see all reservations made with this address: <a href="%s">%s</a></p>
	`, when, b.Space, editURL, listURL, listURL)

	return n.sender.Send(ctx, email, subject, text, html)
}
