// Package mainconfig builds the AWS clients shared by the api binary.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	appconfig "github.com/wolfman30/patient-portal/internal/config"
)

// AWSClients holds the service clients receipts need. A field is nil when
// the matching feature is switched off.
type AWSClients struct {
	S3  *s3.Client
	SES *sesv2.Client
}

// NewAWSClients loads the SDK config and builds only the clients cfg asks
// for: S3 when RECEIPT_BUCKET is set, SES when EMAIL_PROVIDER is "ses".
// It returns an empty AWSClients without touching the SDK when neither is.
func NewAWSClients(ctx context.Context, cfg *appconfig.Config) (AWSClients, error) {
	wantS3 := strings.TrimSpace(cfg.ReceiptBucket) != ""
	wantSES := strings.EqualFold(strings.TrimSpace(cfg.EmailProvider), "ses")
	if !wantS3 && !wantSES {
		return AWSClients{}, nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return AWSClients{}, err
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.AWSEndpointOverride), "/")
	var clients AWSClients
	if wantS3 {
		clients.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				// LocalStack serves buckets by path, not virtual host.
				o.UsePathStyle = true
			}
		})
	}
	if wantSES {
		clients.SES = sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	return clients, nil
}

// LoadAWSConfig resolves region and credentials. Static keys win over the
// default chain only when both halves are present.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if key != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	return awsCfg, nil
}
