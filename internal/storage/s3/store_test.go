package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/flowbit/vanna/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := newStore(fake, "vanna-backups", "flowbit/prod")
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/flowbit_vanna_model/latest.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "vanna-backups" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "flowbit/prod/flowbit_vanna_model/latest.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
}

func TestPutDefaultsParquetContentTypeAndCarriesMetadata(t *testing.T) {
	fake := &fakeClient{}
	store, err := newStore(fake, "vanna-backups", "")
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	info, err := store.Put(context.Background(), "flowbit_vanna_model/training-20260301T120000.000000Z.parquet",
		bytes.NewBufferString("abc"), 3, storage.PutOptions{Metadata: map[string]string{"examples": "4"}})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutOpts.ContentType != ParquetContentType {
		t.Fatalf("content type = %q", fake.lastPutOpts.ContentType)
	}
	if fake.lastPutOpts.Metadata["examples"] != "4" || info.Metadata["examples"] != "4" {
		t.Fatalf("metadata = %#v / %#v", fake.lastPutOpts.Metadata, info.Metadata)
	}

	if _, err := store.Put(context.Background(), "notes.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutOpts.ContentType != "" {
		t.Fatalf("content type = %q, want empty for non-parquet keys", fake.lastPutOpts.ContentType)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := newStore(&fakeClient{}, "vanna-backups", "")
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := newStore(&fakeClient{getErr: storage.ErrObjectNotFound}, "vanna-backups", "")
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "flowbit_vanna_model/latest.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestListStripsStorePrefixAndSorts(t *testing.T) {
	now := time.Now().UTC()
	fake := &fakeClient{objects: []storage.ObjectInfo{
		{Key: "flowbit/prod/flowbit_vanna_model/training-20260102T000000Z.parquet", Size: 20, LastModified: now, Metadata: map[string]string{"X-Amz-Meta-Examples": "7"}},
		{Key: "flowbit/prod/flowbit_vanna_model/latest.parquet", Size: 20, LastModified: now},
	}}
	store, err := newStore(fake, "vanna-backups", "flowbit/prod")
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	objects, err := store.List(context.Background(), "flowbit_vanna_model/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "flowbit/prod/flowbit_vanna_model/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(objects) != 2 {
		t.Fatalf("objects = %#v", objects)
	}
	if objects[0].Key != "flowbit_vanna_model/latest.parquet" || objects[1].Key != "flowbit_vanna_model/training-20260102T000000Z.parquet" {
		t.Fatalf("keys = %q, %q", objects[0].Key, objects[1].Key)
	}
	if objects[1].Metadata["examples"] != "7" {
		t.Fatalf("metadata = %#v", objects[1].Metadata)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := newStore(fake, "vanna-backups", "")
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected MakeBucket to be called")
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	store, err := newStore(&fakeClient{deleteErr: storage.ErrObjectNotFound}, "vanna-backups", "")
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if err := store.Delete(context.Background(), "flowbit_vanna_model/training-1.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if _, err := New(context.Background(), Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}

	endpoint, secure, err = parseEndpoint("localhost:9000", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "localhost:9000" || secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastPutOpts        storage.PutOptions
	lastListPrefix     string
	objects            []storage.ObjectInfo
	bucketExists       bool
	createBucketCalled bool
	getErr             error
	deleteErr          error
}

func (f *fakeClient) PutObject(_ context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastPutOpts = opts
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	return append([]storage.ObjectInfo(nil), f.objects...), nil
}

func (f *fakeClient) RemoveObject(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) MakeBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
