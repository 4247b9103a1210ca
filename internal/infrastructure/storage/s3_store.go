package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"AdobeDigest/internal/config"
	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/ports"
)

const s3UpdateAttempts = 3

// objectAPI is the part of the S3 client the store needs.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the tracking document as one object. Writes are conditional on the ETag
// read at the start of the update, so a concurrent writer forces a retry.
type S3Store struct {
	api    objectAPI
	bucket string
	key    string
	now    func() time.Time
}

var _ ports.TrackingStore = (*S3Store)(nil)

// NewS3Store builds a client from the default AWS chain with optional overrides.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Key), nil
}

func newS3Store(api objectAPI, bucket, key string) *S3Store {
	if key == "" {
		key = "tracking.json"
	}
	return &S3Store{api: api, bucket: bucket, key: key, now: time.Now}
}

// Load reads the document; a missing object is an empty state.
func (s *S3Store) Load(ctx context.Context) (domain.TrackingState, error) {
	state, _, err := s.get(ctx)
	return state, err
}

// Update applies fn and writes the object back with If-Match / If-None-Match.
func (s *S3Store) Update(ctx context.Context, fn func(*domain.TrackingState) error) error {
	for attempt := 0; attempt < s3UpdateAttempts; attempt++ {
		state, etag, err := s.get(ctx)
		if err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		state.LastUpdated = s.now().UTC()

		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal tracking state: %w", err)
		}

		in := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		}
		if etag != "" {
			in.IfMatch = aws.String(etag)
		} else {
			in.IfNoneMatch = aws.String("*")
		}

		_, err = s.api.PutObject(ctx, in)
		if err == nil {
			return nil
		}
		if isPreconditionFailed(err) {
			continue
		}
		return fmt.Errorf("put tracking object: %w", err)
	}
	return fmt.Errorf("put tracking object s3://%s/%s: concurrent writers", s.bucket, s.key)
}

func (s *S3Store) get(ctx context.Context) (domain.TrackingState, string, error) {
	var state domain.TrackingState

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return state, "", nil
		}
		return state, "", fmt.Errorf("get tracking object: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return state, "", fmt.Errorf("read tracking object: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &state); err != nil {
			return state, "", fmt.Errorf("parse tracking object: %w", err)
		}
	}
	return state, aws.ToString(out.ETag), nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
