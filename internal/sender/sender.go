package sender

import (
	"context"
	"fmt"
	"log"

	"kestrel/internal/conf"
)

// Provider delivers one raw message to its recipients.
type Provider interface {
	Send(ctx context.Context, from string, to []string, content []byte) error
}

// New builds the configured outbound provider.
func New(ctx context.Context, cfg conf.SenderConfig, logger *log.Logger) (Provider, error) {
	switch cfg.Provider {
	case "ses":
		if cfg.Region == "" {
			return nil, fmt.Errorf("ses provider requires a region")
		}
		return NewSESProvider(ctx, cfg.Region, logger)
	case "imap":
		if cfg.Address == "" || cfg.Username == "" {
			return nil, fmt.Errorf("imap provider requires address and username")
		}
		mailbox := cfg.Mailbox
		if mailbox == "" {
			mailbox = "INBOX"
		}
		return &IMAPProvider{
			Address:  cfg.Address,
			Username: cfg.Username,
			Password: cfg.Password,
			Mailbox:  mailbox,
			logger:   logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown sender provider %q", cfg.Provider)
	}
}
