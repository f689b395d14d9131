package factory

import (
	"fmt"

	"github.com/mikey/applytrack/internal/adapters/mailbox"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
)

// MailboxFactory creates the mail provider based on configuration
type MailboxFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailboxFactory creates a new mailbox factory
func NewMailboxFactory(cfg *config.Config, logger *zap.Logger) *MailboxFactory {
	return &MailboxFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailProviderFactory returns the per-user mailbox opener. The smtp
// provider is also a ports.Service that must be started to receive mail.
func (f *MailboxFactory) CreateMailProviderFactory() (core.MailProviderFactory, error) {
	mc := f.cfg.GetMailbox()

	switch mc.Provider {
	case "", "gmail":
		if mc.GmailAccessToken == "" {
			f.logger.Warn("Gmail access token is not set; syncs will fail as unauthorized")
		}
		return mailbox.NewGmailFactory(mc.GmailUser, mc.GmailAccessToken, f.logger), nil
	case "smtp":
		if len(mc.SMTPAccounts) == 0 {
			f.logger.Warn("No SMTP inbox accounts configured; only <user>@domain recipients are accepted",
				zap.String("domain", mc.SMTPDomain))
		}
		return mailbox.NewSMTPInbox(f.logger, mc.SMTPListenAddress, mc.SMTPDomain, mc.SMTPAccounts), nil
	default:
		return nil, fmt.Errorf("unsupported mailbox provider: %s", mc.Provider)
	}
}
