package sender

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESProvider delivers through Amazon SES as a raw message, so
// pipeline-added headers survive untouched.
type SESProvider struct {
	client *sesv2.Client
	logger *log.Logger
}

func NewSESProvider(ctx context.Context, region string, logger *log.Logger) (*SESProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SESProvider{client: sesv2.NewFromConfig(awsCfg), logger: logger}, nil
}

func (s *SESProvider) Send(ctx context.Context, from string, to []string, content []byte) error {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: content},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send via ses: %w", err)
	}
	if s.logger != nil && out.MessageId != nil {
		s.logger.Printf("SES accepted message %s", *out.MessageId)
	}
	return nil
}
