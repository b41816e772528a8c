package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Store uploads objects through the Supabase Storage S3-compatible API.
// Buckets map to S3 buckets; the endpoint is <project>/storage/v1/s3 with
// path-style addressing.
type S3Store struct {
	client  *s3.Client
	baseURL string
	log     zerolog.Logger
}

// NewS3Store creates an S3-protocol storage client for the given project.
func NewS3Store(baseURL, accessKey, secretKey, region string, log zerolog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/storage/v1/s3"
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:  client,
		baseURL: baseURL,
		log:     log.With().Str("component", "s3-storage").Logger(),
	}, nil
}

// Upload stores the object and returns its public URL.
func (s *S3Store) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &name,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}

	url := PublicURL(s.baseURL, bucket, name)
	s.log.Info().Str("bucket", bucket).Str("name", name).Int("bytes", len(data)).Msg("object uploaded")
	return url, nil
}

func (s *S3Store) Type() string { return "s3" }
