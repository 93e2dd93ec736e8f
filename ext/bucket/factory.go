package bucket

import (
	"context"

	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcp"
	"golang.org/x/oauth2"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

// TokenSourcer hands out the oauth2 source backing bucket transports.
type TokenSourcer interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

type GCSFactory struct {
	tokens TokenSourcer
}

func NewGCSFactory(tokens TokenSourcer) *GCSFactory {
	return &GCSFactory{tokens: tokens}
}

func (f *GCSFactory) New(ctx context.Context, bucketName string) (Bucket, error) {
	ts, err := f.tokens.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), ts)
	if err != nil {
		return nil, errors.Wrap(EntityStorage, "failed to build authenticated transport", err)
	}

	gcsBucket, err := gcsblob.OpenBucket(ctx, client, bucketName, nil)
	if err != nil {
		return nil, errors.Wrap(EntityStorage, "failed to open bucket "+bucketName, err)
	}
	return gcsBucket, nil
}
