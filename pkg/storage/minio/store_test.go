package minio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

type fakeAPI struct {
	buckets map[string]bool
	objects map[string][]byte
	putErr  error
	puts    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{buckets: map[string]bool{}, objects: map[string][]byte{}}
}

func (f *fakeAPI) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeAPI) StatObject(_ context.Context, _, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if data, ok := f.objects[object]; ok {
		return minio.ObjectInfo{Key: object, Size: int64(len(data))}, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{StatusCode: http.StatusNotFound, Code: "NoSuchKey"}
}

func (f *fakeAPI) PutObject(_ context.Context, _, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.puts++
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if opts.Progress != nil {
		half := make([]byte, len(data)/2)
		_, _ = opts.Progress.Read(half)
		_, _ = opts.Progress.Read(make([]byte, len(data)-len(half)))
	}
	f.objects[object] = data
	return minio.UploadInfo{Key: object, Size: size}, nil
}

func TestEnsureBucketCreatesMissing(t *testing.T) {
	api := newFakeAPI()
	store := newWithAPI(api, "soundmint")
	require.NoError(t, store.ensureBucket(context.Background()))
	assert.True(t, api.buckets["soundmint"])
	require.NoError(t, store.Ping(context.Background()))
}

func TestUploadReportsMonotonicProgress(t *testing.T) {
	api := newFakeAPI()
	store := newWithAPI(api, "soundmint")
	file := storage.NewBytesFile("cover.png", "image/png", []byte("0123456789abcdef"))

	var progress []int
	res, err := store.Upload(context.Background(), file, func(p int) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, storage.ObjectKey(res.ContentAddress), res.Key)
	assert.Equal(t, []byte("0123456789abcdef"), api.objects[res.Key])

	require.GreaterOrEqual(t, len(progress), 3)
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestUploadSkipsExistingContent(t *testing.T) {
	api := newFakeAPI()
	store := newWithAPI(api, "soundmint")
	file := storage.NewBytesFile("a.mp3", "audio/mpeg", []byte("same"))

	_, err := store.Upload(context.Background(), file, nil)
	require.NoError(t, err)
	_, err = store.Upload(context.Background(), file, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, api.puts)
}

func TestUploadClassifiesErrors(t *testing.T) {
	api := newFakeAPI()
	store := newWithAPI(api, "soundmint")
	file := storage.NewBytesFile("a.mp3", "audio/mpeg", []byte("x"))

	api.putErr = errors.New("connection reset")
	_, err := store.Upload(context.Background(), file, nil)
	require.Error(t, err)
	assert.False(t, storage.IsValidation(err))

	api.putErr = minio.ErrorResponse{StatusCode: http.StatusRequestEntityTooLarge, Code: "EntityTooLarge"}
	_, err = store.Upload(context.Background(), file, nil)
	require.Error(t, err)
	assert.True(t, storage.IsValidation(err))
}
