package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

const (
	sendGridEndpoint    = "/v3/mail/send"
	DefaultSendGridHost = "https://api.sendgrid.com"
)

// SendGridTransport sends plain-text alert e-mails through the SendGrid v3 API.
type SendGridTransport struct {
	apiKey string
	host   string
}

func NewSendGridTransport(apiKey, host string) (*SendGridTransport, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid: empty api key")
	}
	if host == "" {
		host = DefaultSendGridHost
	}
	return &SendGridTransport{apiKey: apiKey, host: strings.TrimRight(host, "/")}, nil
}

func (t *SendGridTransport) Name() string { return "sendgrid" }

func (t *SendGridTransport) Send(ctx context.Context, msg Message) (domain.NotificationReceipt, error) {
	if msg.Recipient == "" || msg.Sender == "" {
		return domain.NotificationReceipt{}, errors.New("sendgrid: missing recipient or sender")
	}
	from := mail.NewEmail("", msg.Sender)
	to := mail.NewEmail("", msg.Recipient)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	request := sendgrid.GetRequest(t.apiKey, sendGridEndpoint, t.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return domain.NotificationReceipt{}, fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return domain.NotificationReceipt{}, fmt.Errorf("sendgrid: unexpected status code %d: %s", resp.StatusCode, resp.Body)
	}

	receipt := domain.NotificationReceipt{Channel: t.Name()}
	for key, values := range resp.Headers {
		if strings.EqualFold(key, "X-Message-Id") && len(values) > 0 {
			receipt.MessageID = values[0]
		}
	}
	return receipt, nil
}
