package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

const Subject = "SolarEdge Alert"

const DefaultTemplate = `Your solar edge power generation is outside of acceptable parameters.
Please login into SolarEdge portal and review generation data.
This alert was generated for the inverter with serial number {{.Serial}}`

// Message is one rendered alert.
type Message struct {
	Recipient string
	Sender    string
	Subject   string
	Body      string
	Serial    domain.InverterID
}

// Transport delivers a message over one channel.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (domain.NotificationReceipt, error)
}

// Notifier formats the alert and hands it to every configured transport.
type Notifier struct {
	transports []Transport
	recipient  string
	sender     string
	tpl        *template.Template
	timeout    time.Duration
	log        zerolog.Logger
}

type Option func(*Notifier)

// WithRequestTimeout bounds each transport call.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(n *Notifier) {
		n.log = logger
	}
}

// WithTemplate overrides DefaultTemplate.
func WithTemplate(tpl *template.Template) Option {
	return func(n *Notifier) {
		if tpl != nil {
			n.tpl = tpl
		}
	}
}

func NewNotifier(recipient, sender string, transports []Transport, opts ...Option) (*Notifier, error) {
	active := make([]Transport, 0, len(transports))
	for _, t := range transports {
		if t != nil {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return nil, domain.ErrNoTransport
	}
	n := &Notifier{
		transports: active,
		recipient:  recipient,
		sender:     sender,
		tpl:        template.Must(template.New("inverter-alert").Parse(DefaultTemplate)),
		timeout:    30 * time.Second,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Render builds the alert message for a serial.
func (n *Notifier) Render(serial domain.InverterID) (Message, error) {
	var buf bytes.Buffer
	if err := n.tpl.Execute(&buf, struct{ Serial domain.InverterID }{serial}); err != nil {
		return Message{}, err
	}
	return Message{
		Recipient: n.recipient,
		Sender:    n.sender,
		Subject:   Subject,
		Body:      buf.String(),
		Serial:    serial,
	}, nil
}

// SendAlert delivers the alert on every transport. It succeeds when at least
// one transport delivered; otherwise the joined NotificationErrors are returned.
func (n *Notifier) SendAlert(ctx context.Context, serial domain.InverterID) (domain.NotificationReceipt, error) {
	msg, err := n.Render(serial)
	if err != nil {
		return domain.NotificationReceipt{}, &domain.NotificationError{Channel: "template", Serial: serial, Err: err}
	}

	var (
		delivered []domain.NotificationReceipt
		errs      []error
	)
	for _, t := range n.transports {
		receipt, err := n.send(ctx, t, msg)
		if err != nil {
			nerr := &domain.NotificationError{Channel: t.Name(), Serial: serial, Err: err}
			errs = append(errs, nerr)
			n.log.Warn().Err(nerr).Str("serial", string(serial)).Str("channel", t.Name()).Msg("alert channel failed")
			continue
		}
		delivered = append(delivered, receipt)
	}

	if len(delivered) == 0 {
		return domain.NotificationReceipt{}, errors.Join(errs...)
	}
	return mergeReceipts(delivered), nil
}

func (n *Notifier) send(ctx context.Context, t Transport, msg Message) (domain.NotificationReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return t.Send(ctx, msg)
}

func mergeReceipts(receipts []domain.NotificationReceipt) domain.NotificationReceipt {
	if len(receipts) == 1 {
		return receipts[0]
	}
	channels := make([]string, 0, len(receipts))
	ids := make([]string, 0, len(receipts))
	for _, r := range receipts {
		channels = append(channels, r.Channel)
		if r.MessageID != "" {
			ids = append(ids, r.MessageID)
		}
	}
	return domain.NotificationReceipt{
		Channel:   strings.Join(channels, ","),
		MessageID: strings.Join(ids, ","),
	}
}
