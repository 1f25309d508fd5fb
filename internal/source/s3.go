package source

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kyleking/sql-agent/internal/errors"
)

// maxObjectSize bounds a single schema file read from a bucket
const maxObjectSize = 4 << 20

var errObjectNotFound = goerrors.New("object not found")

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// objectClient is the subset of bucket operations the source needs
type objectClient interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3 reads *.json objects under a prefix of an S3-compatible bucket
type S3 struct {
	client objectClient
	bucket string
	prefix string
}

func NewS3(_ context.Context, cfg S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New(errors.ErrTypeConfig, "s3 bucket is required")
	}

	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	return &S3{client: mc, bucket: strings.TrimSpace(cfg.Bucket), prefix: cleanPrefix(cfg.Prefix)}, nil
}

// NewS3WithClient builds a source over an existing client
func NewS3WithClient(bucket, prefix string, c objectClient) (*S3, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}

	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	return &S3{client: c, bucket: strings.TrimSpace(bucket), prefix: cleanPrefix(prefix)}, nil
}

func (s *S3) Describe() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}

	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3) Load(ctx context.Context) ([]Definition, error) {
	listPrefix := s.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}

	keys, err := s.client.List(ctx, s.bucket, listPrefix)
	if err != nil {
		if goerrors.Is(err, errObjectNotFound) {
			return nil, errors.NewSourceNotFoundError(s.Describe())
		}

		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "failed to list %s", s.Describe())
	}

	var defs []Definition

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// only direct children of the prefix, matching the directory source
		if !isSchemaFile(key) || strings.Contains(strings.TrimPrefix(key, listPrefix), "/") {
			continue
		}

		origin := "s3://" + s.bucket + "/" + key

		raw, err := s.read(ctx, key)
		if err != nil {
			defs = append(defs, Definition{ID: stem(key), Origin: origin, Err: err})
			continue
		}

		defs = append(defs, NewDefinition(origin, raw))
	}

	if len(defs) == 0 {
		return nil, errors.NewSourceNotFoundError(s.Describe())
	}

	sortByOrigin(defs)

	return defs, nil
}

func (s *S3) read(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Get(ctx, s.bucket, key)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "get object %q", key)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxObjectSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "read object %q", key)
	}

	if len(raw) > maxObjectSize {
		return nil, errors.NewInvalidSchemaError(key, "file is larger than 4 MiB")
	}

	return raw, nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.Trim(prefix, "/"))
	if prefix == "" {
		return ""
	}

	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}

	return prefix
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}

		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}

		return parsed.Host, parsed.Scheme == "https", nil
	}

	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func newMinioClient(cfg S3Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "invalid s3 endpoint")
	}

	opts := &minio.Options{
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	}

	// without static keys fall back to the usual AWS environment and files
	if cfg.AccessKeyID != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		opts.Creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}

	c, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "create s3 client")
	}

	return &minioClient{client: c}, nil
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string

	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, mapMinioErr(obj.Err)
		}

		keys = append(keys, obj.Key)
	}

	return keys, nil
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}

	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioErr(err)
	}

	return obj, nil
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}

	var response minio.ErrorResponse
	if goerrors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return errObjectNotFound
		}
	}

	return err
}
