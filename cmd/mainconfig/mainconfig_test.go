package mainconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appconfig "github.com/wolfman30/patient-portal/internal/config"
)

func TestNewAWSClientsSkipsWhenUnused(t *testing.T) {
	clients, err := NewAWSClients(context.Background(), &appconfig.Config{AWSRegion: "us-east-1", EmailProvider: "sendgrid"})
	require.NoError(t, err)
	assert.Nil(t, clients.S3)
	assert.Nil(t, clients.SES)
}

func TestNewAWSClientsBuildsRequested(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566/",
		ReceiptBucket:       "receipts",
		EmailProvider:       "SES",
	}
	clients, err := NewAWSClients(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, clients.S3)
	require.NotNil(t, clients.SES)

	opts := clients.S3.Options()
	assert.True(t, opts.UsePathStyle)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *opts.BaseEndpoint)
}

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	awsCfg, err := LoadAWSConfig(context.Background(), &appconfig.Config{
		AWSRegion:          "eu-west-1",
		AWSAccessKeyID:     "AKIA",
		AWSSecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds.AccessKeyID)
}
