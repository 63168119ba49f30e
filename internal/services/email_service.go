package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the part of the SES client the email channel uses
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailChannel delivers alerts to a fixed recipient list through AWS SES
type EmailChannel struct {
	sesClient   SESAPI
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewEmailChannel wraps an existing SES client
func NewEmailChannel(client SESAPI, fromAddress string, recipients []string, logger *slog.Logger) *EmailChannel {
	return &EmailChannel{
		sesClient:   client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      logger,
	}
}

// NewSESEmailChannel loads the default AWS configuration for region
func NewSESEmailChannel(ctx context.Context, region, fromAddress string, recipients []string, logger *slog.Logger) (*EmailChannel, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewEmailChannel(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

func (c *EmailChannel) Name() string {
	return "email"
}

// Send emails one alert to every recipient
func (c *EmailChannel) Send(ctx context.Context, alert models.Alert) error {
	if len(c.recipients) == 0 {
		return fmt.Errorf("%w: email channel has no recipients", models.ErrChannelDelivery)
	}

	subject := fmt.Sprintf("[%s] Security Alert: %s", strings.ToUpper(string(alert.Severity)), alert.Type.Title())

	input := &ses.SendEmailInput{
		Source: aws.String(c.fromAddress),
		Destination: &types.Destination{
			ToAddresses: c.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(alertEmailHTML(alert)),
				},
				Text: &types.Content{
					Data: aws.String(alertEmailText(alert)),
				},
			},
		},
	}

	result, err := c.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: ses: %v", models.ErrChannelDelivery, err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	c.logger.Info("alert email sent",
		slog.String("alert_id", alert.ID),
		slog.Int("recipients", len(c.recipients)),
		slog.String("message_id", messageID))

	return nil
}

func alertEmailText(alert models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Security Alert: %s\n\n", alert.Type.Title())
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(string(alert.Severity)))
	fmt.Fprintf(&b, "Time: %s\n", alert.CreatedAt.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "Alert ID: %s\n", alert.ID)
	if alert.IPAddress != nil {
		fmt.Fprintf(&b, "IP Address: %s\n", *alert.IPAddress)
	}
	if alert.UserID != nil {
		fmt.Fprintf(&b, "User ID: %s\n", *alert.UserID)
	}
	fmt.Fprintf(&b, "\n%s\n", alert.Message)
	if len(alert.Details) > 0 {
		b.WriteString("\nDetails:\n")
		for _, d := range alert.Details {
			fmt.Fprintf(&b, "  %s: %v\n", d.Key, d.Value)
		}
	}
	b.WriteString("\nThis is an automated message from the security monitoring service.\n")
	return b.String()
}

func alertEmailHTML(alert models.Alert) string {
	var rows strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&rows, "<tr><th align=\"left\">%s</th><td>%s</td></tr>\n", label, html.EscapeString(value))
	}
	row("Severity", strings.ToUpper(string(alert.Severity)))
	row("Time", alert.CreatedAt.UTC().Format(time.RFC1123))
	row("Alert ID", alert.ID)
	if alert.IPAddress != nil {
		row("IP Address", *alert.IPAddress)
	}
	if alert.UserID != nil {
		row("User ID", *alert.UserID)
	}
	for _, d := range alert.Details {
		row(html.EscapeString(d.Key), fmt.Sprint(d.Value))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8d7da; padding: 20px; text-align: center; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Security Alert: %s</h1>
        </div>
        <p>%s</p>
        <table>
%s        </table>
        <div class="footer">
            <p>This is an automated message from the security monitoring service.</p>
        </div>
    </div>
</body>
</html>
`, html.EscapeString(alert.Type.Title()), html.EscapeString(alert.Message), rows.String())
}
