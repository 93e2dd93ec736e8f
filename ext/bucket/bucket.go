package bucket

import (
	"context"
	"io"
	"os"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

const EntityStorage = "storage"

// Bucket is the object-storage surface the orchestrators depend on.
// *blob.Bucket satisfies it; tests substitute memblob.
type Bucket interface {
	WriteAll(ctx context.Context, key string, p []byte, opts *blob.WriterOptions) error
	ReadAll(ctx context.Context, key string) ([]byte, error)
	NewWriter(ctx context.Context, key string, opts *blob.WriterOptions) (*blob.Writer, error)
	NewReader(ctx context.Context, key string, opts *blob.ReaderOptions) (*blob.Reader, error)
	List(opts *blob.ListOptions) *blob.ListIterator
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Factory opens a named bucket with the caller's credentials.
type Factory interface {
	New(ctx context.Context, bucketName string) (Bucket, error)
}

// UploadFile streams a local file into the bucket.
func UploadFile(ctx context.Context, b Bucket, key, localPath string) (err error) {
	src, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(EntityStorage, "failed to open "+localPath, err)
	}
	defer src.Close()

	dst, err := b.NewWriter(ctx, key, nil)
	if err != nil {
		return errors.Wrap(EntityStorage, "failed to open writer for "+key, err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = errors.Wrap(EntityStorage, "failed to finish upload of "+key, cerr)
		}
	}()

	_, err = io.Copy(dst, src)
	return errors.WrapIfErr(EntityStorage, "failed to upload "+key, err)
}

// DownloadTo streams an object into a local file. It reports 0 on
// success and 1 on any failure, matching the download contract the UI
// expects.
func DownloadTo(ctx context.Context, b Bucket, key, localPath string) (int, error) {
	src, err := b.NewReader(ctx, key, nil)
	if err != nil {
		return 1, errors.Wrap(EntityStorage, "failed to open reader for "+key, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return 1, errors.Wrap(EntityStorage, "failed to create "+localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return 1, errors.Wrap(EntityStorage, "failed to download "+key, err)
	}
	return 0, nil
}

// Delete removes an object, tolerating objects that are already gone.
func Delete(ctx context.Context, b Bucket, key string) error {
	if err := b.Delete(ctx, key); err != nil {
		if gcerrors.Code(err) != gcerrors.NotFound {
			return errors.Wrap(EntityStorage, "failed to delete "+key, err)
		}
	}
	return nil
}

// ListKeys returns object keys under the given prefix.
func ListKeys(ctx context.Context, b Bucket, prefix string) ([]string, error) {
	var keys []string
	it := b.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(EntityStorage, "failed to list "+prefix, err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// IsGSPath reports whether the given input already points at object
// storage rather than a local notebook file.
func IsGSPath(p string) bool {
	return strings.HasPrefix(p, "gs://")
}
