package objstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bmatcuk/doublestar/v4"
)

func init() {
	Register("s3", func(ctx context.Context, cfg Config) (Store, error) {
		return NewS3(ctx, cfg)
	})
}

// deleteBatch is the S3 DeleteObjects per-request key limit.
const deleteBatch = 1000

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// uploader is satisfied by *manager.Uploader.
type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 is a Store over one bucket prefix.
type S3 struct {
	bucket string
	prefix string // "" or ends with "/"
	api    s3API
	up     uploader
}

// NewS3 builds the client from explicit credentials when given, otherwise
// from the AWS default chain. Region and endpoint overrides are optional.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	bucket, prefix, err := splitBucket(cfg.Location)
	if err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if !cfg.Credentials.Empty() {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Credentials.AccessKeyID,
			cfg.Credentials.SecretAccessKey,
			cfg.Credentials.SessionToken,
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3(bucket, prefix, client, manager.NewUploader(client)), nil
}

func newS3(bucket, prefix string, api s3API, up uploader) *S3 {
	return &S3{bucket: bucket, prefix: prefix, api: api, up: up}
}

func (s *S3) key(k string) string { return s.prefix + strings.TrimPrefix(k, "/") }

func (s *S3) Glob(ctx context.Context, pattern string) ([]string, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("objstore: bad glob pattern %q", pattern)
	}
	keys, err := s.List(ctx, staticPrefix(pattern))
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		ok, err := doublestar.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("objstore: match %q: %w", pattern, err)
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})

	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("objstore: list s3://%s/%s: %w", s.bucket, s.key(prefix), err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if strings.HasSuffix(k, "/") {
				continue // folder placeholder
			}
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: get %s: %w", s.URI(key), err)
	}
	return out.Body, nil
}

func (s *S3) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("objstore: put %s: %w", s.URI(key), err)
	}
	return nil
}

// RemoveAll deletes every object under prefix/. The trailing slash keeps a
// table named "songs" from taking "songs_v2" with it.
func (s *S3) RemoveAll(ctx context.Context, prefix string) error {
	dir := dirPrefix(prefix)
	if dir == "" {
		return fmt.Errorf("objstore: refusing to remove bucket root s3://%s/%s", s.bucket, s.prefix)
	}
	keys, err := s.List(ctx, dir)
	if err != nil {
		return err
	}

	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(s.key(k))})
		}
		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("objstore: delete under %s: %w", s.URI(dir), err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("objstore: delete %s: %s (%d failed)",
				aws.ToString(e.Key), aws.ToString(e.Message), len(out.Errors))
		}
	}
	return nil
}

func (s *S3) URI(key string) string {
	return "s3://" + s.bucket + "/" + s.key(key)
}

func (s *S3) Close() error { return nil }
