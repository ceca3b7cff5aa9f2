package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
	senderName       = "Storefront"
)

// Sendgrid emails operators through the SendGrid v3 mail API.
type Sendgrid struct {
	apiKey string
	host   string
	from   string
	to     []string
}

func NewSendgrid(apiKey, from string, to []string) (*Sendgrid, error) {
	apiKey = strings.TrimSpace(apiKey)
	from = strings.TrimSpace(from)
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	if from == "" {
		return nil, errors.New("sendgrid from address is empty")
	}
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New("at least one operator email is required")
	}
	return &Sendgrid{apiKey: apiKey, host: sendgridHost, from: from, to: recipients}, nil
}

func (s *Sendgrid) Name() string { return "sendgrid" }

func (s *Sendgrid) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(senderName, s.from))
	message.Subject = msg.Subject
	personalization := mail.NewPersonalization()
	for _, addr := range s.to {
		personalization.AddTos(mail.NewEmail("", addr))
	}
	message.AddPersonalizations(personalization)
	message.AddContent(
		mail.NewContent("text/plain", msg.Body),
		mail.NewContent("text/html", "<pre>"+html.EscapeString(msg.Body)+"</pre>"),
	)

	request := sendgrid.GetRequest(s.apiKey, sendgridEndpoint, s.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)
	response, err := sendgrid.API(request)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send failed: status=%d", response.StatusCode)
	}
	return nil
}
