package mailer

import (
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendgridMailer delivers messages through the Sendgrid v3 API.
type SendgridMailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

var _ Mailer = (*SendgridMailer)(nil)

// NewSendgridMailer builds a Sendgrid-backed mailer.
func NewSendgridMailer(apiKey, fromName, fromEmail string) *SendgridMailer {
	return &SendgridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, fromEmail),
	}
}

// Send delivers a single message.
func (m *SendgridMailer) Send(msg Message) error {
	to := sgmail.NewEmail(msg.ToName, msg.To)
	mail := sgmail.NewSingleEmail(m.from, msg.Subject, to, msg.PlainBody, msg.HTMLBody)

	resp, err := m.client.Send(mail)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
