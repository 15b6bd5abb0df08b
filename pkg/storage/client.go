package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sthao/quickform/pkg/errors"
)

// Client provides S3 storage operations for exported PDFs
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// NewClient creates a new S3 client using the default credential chain.
// A non-empty endpoint targets an S3-compatible store with path-style addressing.
func NewClient(ctx context.Context, bucket, region, endpoint string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region, "endpoint", endpoint)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Info("s3_client_created", "bucket", bucket)

	return &Client{
		s3Client: s3Client,
		bucket:   bucket,
	}, nil
}

// Bucket returns the bucket the client writes to
func (c *Client) Bucket() string {
	return c.bucket
}

// ObjectKey joins the configured prefix and a file name into an object key
func ObjectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// UploadResult contains upload metadata
type UploadResult struct {
	Key    string
	SHA256 string
	Size   int64
}

// Upload uploads a local PDF to S3 under key
func (c *Client) Upload(ctx context.Context, key, localPath string) (*UploadResult, error) {
	slog.Info("s3_upload_start", "bucket", c.bucket, "s3_key", key, "local_path", localPath)

	f, err := os.Open(localPath)
	if err != nil {
		slog.Error("local_file_open_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to open local file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat local file")
	}

	// Compute checksum, then rewind for the upload body
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return nil, errors.Wrap(err, "failed to hash local file")
	}
	checksum := hex.EncodeToString(hash.Sum(nil))
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to rewind local file")
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/pdf"),
		Metadata:      map[string]string{"sha256": checksum},
	})
	if err != nil {
		slog.Error("s3_put_object_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to upload file")
	}

	slog.Info("s3_upload_complete",
		"s3_key", key,
		"size_kb", info.Size()/1024,
		"sha256", checksum[:16]+"...",
	)

	return &UploadResult{
		Key:    key,
		SHA256: checksum,
		Size:   info.Size(),
	}, nil
}

// Object describes a stored export
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListObjects lists all objects in the bucket with a given prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	slog.Info("s3_list_start", "bucket", c.bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			o := Object{Key: *obj.Key, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			objects = append(objects, o)
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(objects))

	return objects, nil
}

// Exists checks if an object exists in S3
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			slog.Info("s3_object_not_found", "s3_key", key)
			return false, nil
		}
		slog.Error("s3_head_object_failed", "s3_key", key, "error", err)
		return false, errors.Wrap(err, "failed to check object existence")
	}

	slog.Info("s3_object_exists", "s3_key", key)
	return true, nil
}
