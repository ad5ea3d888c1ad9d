package dataset

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the slice of the S3 client used to fetch datasets.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Open returns a reader for a dataset location: a local path or an
// s3://bucket/key URI. objects may be nil when only local paths are used.
func Open(ctx context.Context, location string, objects ObjectGetter) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "s3://") {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset: %w", err)
		}
		return f, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset location %q: %w", location, err)
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid dataset location %q: want s3://bucket/key", location)
	}
	if objects == nil {
		return nil, fmt.Errorf("dataset %s is on S3 but no S3 client is configured", location)
	}

	out, err := objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dataset from S3: %w", err)
	}
	return out.Body, nil
}
