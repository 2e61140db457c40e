package assethost

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marianozunino/cloudshare/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCloudinary(t *testing.T, handler http.HandlerFunc) *Cloudinary {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewCloudinary(config.AssetHost{
		CloudName:    "demo",
		APIKey:       "key",
		APISecret:    "secret",
		UploadPreset: "preset",
		Folder:       "uploads",
		APIBase:      server.URL + "/",
	}, server.Client())
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestCloudinaryUpload(t *testing.T) {
	c := newTestCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1_1/demo/auto/upload", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "preset", r.FormValue("upload_preset"))
		assert.Equal(t, "uploads", r.FormValue("folder"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "photo.png", header.Filename)
		assert.Equal(t, pngHeader, data)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"public_id":"uploads/abc","secure_url":"https://res.example.com/abc.png","bytes":16,"format":"png","resource_type":"image"}`)
	})

	res, err := c.Upload(context.Background(), UploadInput{
		Body:     strings.NewReader(string(pngHeader)),
		Filename: "photo.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "uploads/abc", res.PublicID)
	assert.Equal(t, "https://res.example.com/abc.png", res.SecureURL)
	assert.Equal(t, int64(16), res.Bytes)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, "image", res.ResourceType)
	assert.Equal(t, "image/png", res.ContentType)
}

func TestCloudinaryUploadCustomFolder(t *testing.T) {
	c := newTestCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "shared", r.FormValue("folder"))
		io.WriteString(w, `{"public_id":"shared/x"}`)
	})

	res, err := c.Upload(context.Background(), UploadInput{Body: strings.NewReader("hello"), Filename: "a.txt", ContentType: "text/plain", Folder: "shared"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", res.ContentType)
}

func TestCloudinaryUploadError(t *testing.T) {
	c := newTestCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"Upload preset not found"}}`)
	})

	_, err := c.Upload(context.Background(), UploadInput{Body: strings.NewReader("x"), Filename: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Upload preset not found")
	assert.ErrorIs(t, err, ErrHostUnavailable)
}

func TestCloudinaryDestroySignsRequest(t *testing.T) {
	sum := sha1.Sum([]byte("public_id=uploads/abc&timestamp=1700000000secret"))
	expected := hex.EncodeToString(sum[:])

	c := newTestCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/video/destroy", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "uploads/abc", r.PostForm.Get("public_id"))
		assert.Equal(t, "key", r.PostForm.Get("api_key"))
		assert.Equal(t, "1700000000", r.PostForm.Get("timestamp"))
		assert.Equal(t, expected, r.PostForm.Get("signature"))
		io.WriteString(w, `{"result":"ok"}`)
	})

	assert.NoError(t, c.Destroy(context.Background(), "uploads/abc", ResourceVideo))
}

func TestCloudinaryDestroyResults(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"not found", http.StatusOK, `{"result":"not found"}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrAssetNotFound)
			assert.NoError(t, IgnoreNotFound(err))
		}},
		{"unexpected result", http.StatusOK, `{"result":"pending"}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrHostUnavailable)
			assert.False(t, errors.Is(err, ErrAssetNotFound))
		}},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, func(t *testing.T, err error) {
			require.Error(t, err)
			assert.Contains(t, err.Error(), "boom")
			assert.ErrorIs(t, err, ErrHostUnavailable)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			tt.check(t, c.Destroy(context.Background(), "uploads/abc", ResourceImage))
		})
	}
}

func TestCloudinaryDestroyRequiresPublicID(t *testing.T) {
	c := NewCloudinary(config.AssetHost{}, nil)
	assert.ErrorIs(t, c.Destroy(context.Background(), "", ResourceImage), ErrMissingPublicID)
}

func TestResourceTypeFor(t *testing.T) {
	assert.Equal(t, ResourceVideo, ResourceTypeFor("video/mp4"))
	assert.Equal(t, ResourceImage, ResourceTypeFor("image/png"))
	assert.Equal(t, ResourceImage, ResourceTypeFor("application/pdf"))
	assert.Equal(t, ResourceImage, ResourceTypeFor(""))
}

// typedHost holds assets under a single resource type
type typedHost struct {
	stored ResourceType
	fail   error
	calls  []ResourceType
}

func (h *typedHost) Upload(context.Context, UploadInput) (*UploadResult, error) {
	return nil, errors.New("not used")
}

func (h *typedHost) Destroy(_ context.Context, publicID string, rt ResourceType) error {
	h.calls = append(h.calls, rt)
	if h.fail != nil {
		return h.fail
	}
	if rt != h.stored {
		return fmt.Errorf("%s: %w", publicID, ErrAssetNotFound)
	}
	return nil
}

func TestDestroyStored(t *testing.T) {
	ctx := context.Background()

	t.Run("stored type is used once", func(t *testing.T) {
		h := &typedHost{stored: ResourceRaw}
		require.NoError(t, DestroyStored(ctx, h, "a", "raw", "image/png"))
		assert.Equal(t, []ResourceType{ResourceRaw}, h.calls)
	})

	t.Run("stored type not found counts as deleted", func(t *testing.T) {
		h := &typedHost{stored: ResourceVideo}
		require.NoError(t, DestroyStored(ctx, h, "a", "image", ""))
		assert.Equal(t, []ResourceType{ResourceImage}, h.calls)
	})

	t.Run("inferred type is tried first", func(t *testing.T) {
		h := &typedHost{stored: ResourceVideo}
		require.NoError(t, DestroyStored(ctx, h, "a", "", "video/mp4"))
		assert.Equal(t, []ResourceType{ResourceVideo}, h.calls)
	})

	t.Run("falls through to raw", func(t *testing.T) {
		h := &typedHost{stored: ResourceRaw}
		require.NoError(t, DestroyStored(ctx, h, "a", "", "application/msword"))
		assert.Equal(t, []ResourceType{ResourceImage, ResourceVideo, ResourceRaw}, h.calls)
	})

	t.Run("host failure stops the search", func(t *testing.T) {
		h := &typedHost{fail: ErrHostUnavailable}
		assert.ErrorIs(t, DestroyStored(ctx, h, "a", "", "image/png"), ErrHostUnavailable)
		assert.Len(t, h.calls, 1)
	})
}
