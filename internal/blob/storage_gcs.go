package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStorage implements Client using Google Cloud Storage.
type GCSStorage struct {
	client    *gcs.Client
	bucket    string
	publicURL string
}

// NewGCSStorage creates a GCS-backed Client.
// It uses Application Default Credentials (works with Workload Identity, SA keys, gcloud auth).
func NewGCSStorage(ctx context.Context, bucket, publicURL string) (*GCSStorage, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket, publicURL: publicURL}, nil
}

func (s *GCSStorage) url(key string) string {
	if s.publicURL != "" {
		return joinURL(s.publicURL, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// Put writes data and reports the object generation as its storage id.
func (s *GCSStorage) Put(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	sum := checksum(data)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"sha1": sum}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, &StorageError{Backend: "gcs", Key: key, Err: fmt.Errorf("write: %w", err)}
	}
	if err := w.Close(); err != nil {
		return nil, &StorageError{Backend: "gcs", Key: key, Err: fmt.Errorf("close: %w", err)}
	}

	storageID := key
	if attrs := w.Attrs(); attrs != nil {
		storageID = strconv.FormatInt(attrs.Generation, 10)
	}
	return &Object{
		StorageID: storageID,
		Key:       key,
		URL:       s.url(key),
		Size:      int64(len(data)),
		SHA1:      sum,
	}, nil
}

// Get reads the object stored under key.
func (s *GCSStorage) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, &StorageError{Backend: "gcs", Key: key, Err: err}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &StorageError{Backend: "gcs", Key: key, Err: err}
	}
	return data, nil
}

// Delete removes the object stored under key.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return &StorageError{Backend: "gcs", Key: key, Err: err}
	}
	return nil
}

// List returns the names of objects under prefix.
func (s *GCSStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, &StorageError{Backend: "gcs", Key: prefix, Err: err}
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
