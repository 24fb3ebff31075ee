package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EmailService interface {
	SendEmail(ctx context.Context, subject, toEmail, plainTextContent, htmlContent string) error
}

type EmailConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

type sendGridService struct {
	client      *sendgrid.Client
	senderEmail string
	senderName  string
}

func NewEmailService(cfg EmailConfig) EmailService {
	return &sendGridService{
		client:      sendgrid.NewSendClient(cfg.APIKey),
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
	}
}

func (e *sendGridService) SendEmail(ctx context.Context, subject, toEmail, plainTextContent, htmlContent string) error {
	from := mail.NewEmail(e.senderName, e.senderEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)
	resp, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
