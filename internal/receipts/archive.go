package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("patientportal.internal.receipts")

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes receipts as JSON objects.
type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
}

func NewS3Archiver(client *s3.Client, bucket string) *S3Archiver {
	return newS3Archiver(client, bucket)
}

func newS3Archiver(client putObjectAPI, bucket string) *S3Archiver {
	if client == nil {
		panic("receipts: s3 client required")
	}
	return &S3Archiver{client: client, bucket: strings.TrimSpace(bucket), prefix: "receipts"}
}

// Key is receipts/YYYY/MM/<id>.json, partitioned by issue date.
func (a *S3Archiver) Key(r Receipt) string {
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, r.IssuedAt.UTC().Format("2006/01"), r.ID)
}

func (a *S3Archiver) Archive(ctx context.Context, r Receipt) (string, error) {
	if a.bucket == "" {
		return "", fmt.Errorf("receipts: bucket not configured")
	}
	ctx, span := tracer.Start(ctx, "receipts.archive")
	defer span.End()

	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("receipts: marshal: %w", err)
	}
	key := a.Key(r)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"receipt-id": r.ID,
			"draft-id":   r.DraftID,
		},
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("receipts: put object: %w", err)
	}
	return key, nil
}
