package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"go.uber.org/zap"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(
	`Hello {{.Contact.Name}},

Thank you for your order {{.OrderID}}. It is now {{.Status}}.

{{range .Items}}- {{if .ProductName}}{{.ProductName}}{{else}}{{.ProductID}}{{end}} x{{.Qty}} @ {{.PriceAtPurchase}} = {{.LineTotal}}
{{end}}
Total: {{.TotalPrice}}
Ship to: {{.Contact.Address}}
Phone: {{.Contact.Phone}}
{{if .Note}}Note: {{.Note}}
{{end}}`))

// RenderConfirmation builds the confirmation email for a created order.
func RenderConfirmation(p orders.OrderCreatedPayload) (Message, error) {
	if p.Contact.Email == "" {
		return Message{}, &orders.ValidationError{Field: "contact.email", Reason: "required for confirmation"}
	}
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, p); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}
	return Message{
		To:      p.Contact.Email,
		Subject: "Order confirmation #" + p.OrderID,
		Body:    buf.String(),
	}, nil
}

// LogMailer writes messages to the log instead of an SMTP relay.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info("email sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
