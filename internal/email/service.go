package email

import (
	"fmt"
	"net"

	"github.com/cockroachdb/errors"
	jwemail "github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
)

// Service handles email sending via SMTP
type Service struct {
	addr string
	from string
	send func(e *jwemail.Email, addr string) error
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		addr: net.JoinHostPort(host, port),
		from: from,
		send: func(e *jwemail.Email, addr string) error { return e.Send(addr, nil) },
	}
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(to, orderID string, total decimal.Decimal, items []OrderItem) error {
	shortID := orderID
	if len(orderID) > 8 {
		shortID = orderID[:8]
	}
	body, err := BuildOrderConfirmationBody(orderID, total, items)
	if err != nil {
		return errors.Wrap(err, "render order confirmation")
	}

	e := jwemail.NewEmail()
	e.From = s.from
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Order confirmation (order %s)", shortID)
	e.HTML = []byte(body)

	return errors.Wrapf(s.send(e, s.addr), "send mail to %s", to)
}
