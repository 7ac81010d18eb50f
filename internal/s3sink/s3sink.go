// Package s3sink optionally uploads a finished archive to S3 once a
// run completes, adapted from the teacher's live object-storage
// backend client down to the PutObject call this one-shot upload
// needs, plus a HeadBucket reachability probe.
package s3sink

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader uploads a completed archive to an S3-compatible backend.
// Narrowed from the teacher's five-method Client interface (Put/Get/
// Delete/Head/List) to an upload plus a bucket-level reachability
// check: the output archive is write-only from this module's
// perspective.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64) error

	// Reachable probes bucket with a HeadBucket call, touching no
	// object — used by the readiness probe to fail fast when the
	// configured upload destination is unreachable or the credential
	// chain can no longer authenticate.
	Reachable(ctx context.Context, bucket string) error
}

type uploader struct {
	client *s3.Client
}

// NewUploader builds an Uploader using the standard AWS SDK v2
// credential chain (environment, shared config, EC2/ECS instance role).
func NewUploader(ctx context.Context) (Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3sink: load AWS config: %w", err)
	}
	return &uploader{client: s3.NewFromConfig(cfg)}, nil
}

func (u *uploader) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("s3sink: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (u *uploader) Reachable(ctx context.Context, bucket string) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("s3sink: head bucket %s: %w", bucket, err)
	}
	return nil
}

// ParseURL splits a config.UploadS3 value of the form "s3://bucket/key"
// into its bucket and key parts.
func ParseURL(raw string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(raw, scheme) {
		return "", "", fmt.Errorf("s3sink: %q is not an s3:// URL", raw)
	}
	rest := raw[len(scheme):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 || idx == 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("s3sink: %q must be s3://bucket/key", raw)
	}
	return rest[:idx], rest[idx+1:], nil
}
