package bucket

import (
	"context"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

// Admin performs bucket-level operations that the blob API does not
// cover: enumerating buckets and creating the fixed Vertex bucket.
type Admin struct {
	tokens TokenSourcer
}

func NewAdmin(tokens TokenSourcer) *Admin {
	return &Admin{tokens: tokens}
}

func (a *Admin) client(ctx context.Context) (*storage.Client, error) {
	ts, err := a.tokens.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, errors.Wrap(EntityStorage, "failed to build storage client", err)
	}
	return client, nil
}

func (a *Admin) ListBuckets(ctx context.Context, projectID string) ([]string, error) {
	client, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var names []string
	it := client.Buckets(ctx, projectID)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(EntityStorage, "failed to list buckets", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// EnsureBucket creates the bucket if it does not exist yet. Creation
// races between concurrent requests are tolerated.
func (a *Admin) EnsureBucket(ctx context.Context, projectID, name string) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	handle := client.Bucket(name)
	if _, err := handle.Attrs(ctx); err == nil {
		return nil
	} else if err != storage.ErrBucketNotExist {
		return errors.Wrap(EntityStorage, "failed to inspect bucket "+name, err)
	}

	if err := handle.Create(ctx, projectID, nil); err != nil {
		return errors.Wrap(EntityStorage, "failed to create bucket "+name, err)
	}
	return nil
}
