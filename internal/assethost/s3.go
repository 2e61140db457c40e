package assethost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/marianozunino/cloudshare/internal/config"
)

// objectAPI is the part of the S3 client the driver uses
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores binaries in an S3-compatible bucket. Object keys double as
// public ids.
type S3 struct {
	client        objectAPI
	bucket        string
	publicBaseURL string
}

// NewS3 builds a client with static credentials against cfg.Endpoint,
// falling back to the default AWS credential chain when no keys are set
func NewS3(ctx context.Context, cfg config.S3) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := cfg.PublicBaseURL
	if publicBase == "" && cfg.Endpoint != "" {
		publicBase = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return newS3WithClient(client, cfg.Bucket, publicBase), nil
}

func newS3WithClient(client objectAPI, bucket, publicBaseURL string) *S3 {
	return &S3{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// Upload buffers the body so the request can be signed, then stores it under
// {folder}/{uuid}.{ext}
func (s *S3) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	sn, err := sniff(in)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(sn.body)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}

	ext := strings.TrimPrefix(path.Ext(in.Filename), ".")
	if ext == "" {
		ext = sn.extension
	}
	key := uuid.NewString()
	if ext != "" {
		key += "." + ext
	}
	if in.Folder != "" {
		key = path.Join(in.Folder, key)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(sn.contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: put object %s: %w", ErrHostUnavailable, key, err)
	}

	return &UploadResult{
		PublicID:     key,
		SecureURL:    s.publicBaseURL + "/" + key,
		Bytes:        int64(len(data)),
		Format:       ext,
		ResourceType: string(ResourceTypeFor(sn.contentType)),
		ContentType:  sn.contentType,
	}, nil
}

// Destroy deletes the object. S3 deletes are idempotent so a missing key is
// only reported when the bucket itself says so.
func (s *S3) Destroy(ctx context.Context, publicID string, _ ResourceType) error {
	if publicID == "" {
		return ErrMissingPublicID
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%s: %w", publicID, ErrAssetNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: delete object %s: %w", ErrHostUnavailable, publicID, err)
	}
	return nil
}
