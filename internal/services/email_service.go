package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/listgate/listgate/pkg/logger"
)

// EmailService defines the interface for sending verification emails.
// Delivery and retry of the email itself belong to the provider.
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, token, contentTitle string, expiresAt time.Time) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// SendVerificationEmail sends the confirm-your-subscription email with the
// verification link
func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, email, token, contentTitle string, expiresAt time.Time) error {
	confirmationLink := fmt.Sprintf("%s/verify/%s", s.baseURL, token)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Confirm your email to unlock &ldquo;%s&rdquo;</h1>
        </div>
        <div class="content">
            <p>You asked for access to subscriber-only content. Click the link below to confirm your email address and unlock it:</p>
            <p><a href="%s" class="button">Unlock Content</a></p>
            <p>Or copy and paste this link in your browser:<br>
            <code>%s</code></p>
            <p>This link expires in 2 hours.</p>
            <p><strong>Didn't request this?</strong><br>
            You can safely ignore this email. Nothing will be unlocked without clicking the link.</p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, contentTitle, confirmationLink, confirmationLink)

	textBody := fmt.Sprintf(`Confirm your email to unlock "%s"

You asked for access to subscriber-only content. Open the link below to confirm your email address and unlock it:

%s

This link expires in 2 hours.

Didn't request this? You can safely ignore this email.
`, contentTitle, confirmationLink)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(fmt.Sprintf("Confirm your email to unlock %q", contentTitle)),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send verification email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("verification email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Time("link_expires_at", expiresAt),
		slog.String("message_id", *result.MessageId))

	return nil
}
