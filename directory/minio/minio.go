// Package minio provides a Directory backed by MinIO or any S3-compatible
// object store. Segment blobs are fetched whole on open; pair it with
// directory.Compressed to cut transfer sizes.
package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/murrdb/murr/directory"
	"github.com/murrdb/murr/schema"
)

// Directory implements directory.Directory on a MinIO bucket prefix.
type Directory struct {
	client *minio.Client
	bucket string
	prefix string
}

// New returns a Directory over bucket with all keys under rootPrefix.
func New(client *minio.Client, bucket, rootPrefix string) *Directory {
	return &Directory{client: client, bucket: bucket, prefix: rootPrefix}
}

func (d *Directory) key(name string) string {
	return path.Join(d.prefix, name)
}

// Index fetches table.json and lists segment objects under the prefix.
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
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{
		Prefix:    d.key(""),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, d.prefix), "/")
		id, ok := directory.ParseSegmentName(name)
		if !ok {
			continue
		}
		segments = append(segments, directory.SegmentInfo{ID: id, Name: name, Size: obj.Size})
	}
	// ListObjects yields keys in lexical order, which is segment order.

	return &directory.Index{Schema: tableSchema, Segments: segments}, nil
}

// Write publishes an object. Object stores give single-key atomicity for
// free: the key is invisible until the put completes.
func (d *Directory) Write(ctx context.Context, name string, data []byte) error {
	_, err := d.client.PutObject(ctx, d.bucket, d.key(name),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
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
	obj, err := d.client.GetObject(ctx, d.bucket, d.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
