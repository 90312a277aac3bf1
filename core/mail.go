package core

import (
	"context"
	"net/mail"
)

type (
	// EmailMessage carries pre-rendered content; rendering is done upstream
	// so that delivery services stay dumb pipes.
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails.
	// Delivery failures are returned to the caller; they are never fatal.
	EmailService interface {
		SendMessage(ctx context.Context, msg *EmailMessage) error
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
