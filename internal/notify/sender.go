package notify

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

// SenderConfig selects an email provider.
type SenderConfig struct {
	Provider       string // sendgrid, ses or stub
	SendGridAPIKey string
	FromEmail      string
	FromName       string

	SESConfigurationSet string
}

// NewEmailSender picks the configured provider, falling back to the stub
// when it is missing credentials.
func NewEmailSender(cfg SenderConfig, ses *sesv2.Client, logger *logging.Logger) EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "sendgrid":
		if s := NewSendGridSender(SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger); s != nil {
			return s
		}
		logger.Warn("sendgrid selected without api key, using stub email sender")
	case "ses":
		if s := NewSESSender(ses, SESConfig{FromEmail: cfg.FromEmail, FromName: cfg.FromName, ConfigurationSet: cfg.SESConfigurationSet}, logger); s != nil {
			return s
		}
		logger.Warn("ses selected without client, using stub email sender")
	}
	return NewStubEmailSender(logger)
}
