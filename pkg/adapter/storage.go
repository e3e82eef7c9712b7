package adapter

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Archive keeps the raw voice notes that enter the pipeline. Archiving is
// best effort: a failed save never blocks transcription.
type Archive interface {
	// Save stores one audio blob under the given key.
	Save(ctx context.Context, key, mimeType string, data []byte) error
}

// archiveClient implements Archive on Cloud Storage.
type archiveClient struct {
	bucketName string
	client     *storage.Client
}

// NewArchive creates a Cloud Storage backed audio archive.
func NewArchive(ctx context.Context, bucketName string) (Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &archiveClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (a *archiveClient) Save(ctx context.Context, key, mimeType string, data []byte) error {
	obj := a.client.Bucket(a.bucketName).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = mimeType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write audio object", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize audio object", goerr.V("key", key))
	}

	return nil
}
