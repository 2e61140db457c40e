package assethost

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	puts      []*s3.PutObjectInput
	bodies    []string
	deletes   []*s3.DeleteObjectInput
	deleteErr error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(data))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, f.deleteErr
}

func TestS3Upload(t *testing.T) {
	fake := &fakeObjects{}
	host := newS3WithClient(fake, "assets", "https://cdn.example.com/")

	res, err := host.Upload(context.Background(), UploadInput{
		Body:     strings.NewReader("hello world"),
		Filename: "notes.txt",
		Folder:   "uploads",
	})
	require.NoError(t, err)
	require.Len(t, fake.puts, 1)

	put := fake.puts[0]
	assert.Equal(t, "assets", aws.ToString(put.Bucket))
	assert.Equal(t, res.PublicID, aws.ToString(put.Key))
	assert.True(t, strings.HasPrefix(res.PublicID, "uploads/"))
	assert.True(t, strings.HasSuffix(res.PublicID, ".txt"))
	assert.Equal(t, int64(11), aws.ToInt64(put.ContentLength))
	assert.Contains(t, aws.ToString(put.ContentType), "text/plain")
	assert.Equal(t, "hello world", fake.bodies[0])

	assert.Equal(t, "https://cdn.example.com/"+res.PublicID, res.SecureURL)
	assert.Equal(t, int64(11), res.Bytes)
	assert.Equal(t, "txt", res.Format)
	assert.Equal(t, "image", res.ResourceType)
}

func TestS3UploadDetectsVideo(t *testing.T) {
	fake := &fakeObjects{}
	host := newS3WithClient(fake, "assets", "https://cdn.example.com")

	res, err := host.Upload(context.Background(), UploadInput{
		Body:        strings.NewReader("not really a video"),
		Filename:    "clip",
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, "video", res.ResourceType)
	assert.NotContains(t, res.PublicID, "/")
}

func TestS3Destroy(t *testing.T) {
	fake := &fakeObjects{}
	host := newS3WithClient(fake, "assets", "")

	require.NoError(t, host.Destroy(context.Background(), "uploads/a.txt", ResourceImage))
	require.Len(t, fake.deletes, 1)
	assert.Equal(t, "uploads/a.txt", aws.ToString(fake.deletes[0].Key))

	assert.ErrorIs(t, host.Destroy(context.Background(), "", ResourceImage), ErrMissingPublicID)

	fake.deleteErr = &types.NoSuchKey{}
	assert.ErrorIs(t, host.Destroy(context.Background(), "gone", ResourceImage), ErrAssetNotFound)

	fake.deleteErr = errors.New("access denied")
	err := host.Destroy(context.Background(), "x", ResourceImage)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHostUnavailable)
	assert.False(t, errors.Is(err, ErrAssetNotFound))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), configS3(""))
	assert.Error(t, err)

	host, err := NewS3(context.Background(), configS3("assets"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/assets", host.publicBaseURL)
}
