// Package s3 provides a Directory backed by Amazon S3. Segment blobs are
// fetched whole on open; pair it with directory.Compressed to cut
// transfer sizes.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/murrdb/murr/directory"
	"github.com/murrdb/murr/schema"
)

// Directory implements directory.Directory on an S3 bucket prefix.
type Directory struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New returns a Directory over bucket with all keys under rootPrefix.
func New(client *s3.Client, bucket, rootPrefix string) *Directory {
	return &Directory{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
	}
}

// NewFromDefaultConfig builds a Directory using the ambient AWS credential
// chain.
func NewFromDefaultConfig(ctx context.Context, bucket, rootPrefix string) (*Directory, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return New(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

func (d *Directory) key(name string) string {
	return path.Join(d.prefix, name)
}

// Index fetches table.json and pages through segment objects.
func (d *Directory) Index(ctx context.Context) (*directory.Index, error) {
	var tableSchema *schema.Table
	data, err := d.fetch(ctx, directory.SchemaFile)
	switch {
	case err == nil:
		tableSchema, err = directory.DecodeSchema(data)
		if err != nil {
			return nil, err
		}
	case isNotFound(err):
		// Empty directory.
	default:
		return nil, err
	}

	var segments []directory.SegmentInfo
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.key("")),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(strings.TrimPrefix(aws.ToString(obj.Key), d.prefix), "/")
			id, ok := directory.ParseSegmentName(name)
			if !ok {
				continue
			}
			segments = append(segments, directory.SegmentInfo{
				ID:   id,
				Name: name,
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	// S3 lists keys in lexical order, which is segment order.

	return &directory.Index{Schema: tableSchema, Segments: segments}, nil
}

// Write publishes an object through the upload manager. S3 puts are
// atomic per key: the object is invisible until the upload completes.
func (d *Directory) Write(ctx context.Context, name string, data []byte) error {
	_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Open fetches the object whole.
func (d *Directory) Open(ctx context.Context, name string) (directory.Blob, error) {
	data, err := d.fetch(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}
	return directory.NewMemoryBlob(data), nil
}

func (d *Directory) fetch(ctx context.Context, name string) ([]byte, error) {
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
