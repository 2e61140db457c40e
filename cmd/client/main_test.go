package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marianozunino/cloudshare/internal/gallery"
	"github.com/marianozunino/cloudshare/internal/identity"
	"github.com/marianozunino/cloudshare/internal/model"
	"github.com/marianozunino/cloudshare/internal/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://example.com", "tok")
	assert.Equal(t, "http://example.com/", client.BaseURL)
	assert.Equal(t, "tok", client.Token)
	assert.NotNil(t, client.HTTPClient)
	assert.Equal(t, 30*time.Minute, client.HTTPClient.Timeout)

	client = NewClient("http://example.com/", "")
	assert.Equal(t, "http://example.com/", client.BaseURL)
}

func TestClientUploadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/files", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "meow", string(data))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.FileRecord{PublicID: "uploads/cat", Name: "cat.png", Size: 4})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	rec, err := client.UploadFile(writeTempFile(t, "cat.png", "meow"))
	require.NoError(t, err)
	assert.Equal(t, "uploads/cat", rec.PublicID)
	assert.Equal(t, int64(4), rec.Size)
}

func TestClientUploadFileWithNonExistentFile(t *testing.T) {
	client := NewClient("http://example.com", "tok")

	_, err := client.UploadFile("/non/existent/file.txt")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"message":"invalid expiration option: \"2h\""}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	_, err := client.CreateLink("uploads/cat", share.CreateOptions{Expiration: "2h"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, `invalid expiration option: "2h"`, apiErr.Message)
}

func TestClientAPIErrorPlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "tok").Stats()
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Internal Server Error", apiErr.Message)
}

func TestClientDeleteFilesAcceptsPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/batch-delete", r.URL.Path)

		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body["publicIds"])

		w.WriteHeader(http.StatusMultiStatus)
		json.NewEncoder(w).Encode(gallery.BatchResult{
			Deleted: []string{"a"},
			Failed:  []gallery.ItemError{{PublicID: "b", Error: "not found"}},
		})
	}))
	defer server.Close()

	result, err := NewClient(server.URL, "tok").DeleteFiles([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.True(t, result.Partial())
}

func TestClientUploadSharedSendsExpires(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shares", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.Equal(t, "72", r.FormValue("expires"))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.ShareRecord{PublicID: "uploads/report", Name: "report.pdf"})
	}))
	defer server.Close()

	rec, err := NewClient(server.URL, "tok").UploadShared(writeTempFile(t, "report.pdf", "%PDF"), "72")
	require.NoError(t, err)
	assert.Equal(t, "uploads/report", rec.PublicID)
}

func TestClientStopSharingEscapesPublicID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/shares/uploads%2Freport.pdf", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, "tok").StopSharing("uploads/report.pdf"))
}

func TestClientCreateLink(t *testing.T) {
	expires := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/links", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "uploads/cat", body["fileId"])
		assert.Equal(t, "1h", body["expiration"])
		assert.Equal(t, "specific", body["accessType"])
		assert.Equal(t, "pw", body["password"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(share.Link{ID: "abc", URL: "https://cloudshare.example/s/abc", ExpiresAt: &expires})
	}))
	defer server.Close()

	link, err := NewClient(server.URL, "tok").CreateLink("uploads/cat", share.CreateOptions{
		Expiration: "1h", AccessType: "specific", Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cloudshare.example/s/abc", link.URL)
	require.NotNil(t, link.ExpiresAt)
	assert.True(t, expires.Equal(*link.ExpiresAt))
}

func TestClientTransform(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transform/uploads%2Fcat", r.URL.EscapedPath())
		assert.Equal(t, "art", r.URL.Query().Get("effect"))
		assert.Equal(t, "zorro", r.URL.Query().Get("filter"))
		json.NewEncoder(w).Encode(map[string]string{"url": "https://res.example/e_art:zorro/uploads/cat"})
	}))
	defer server.Close()

	u, err := NewClient(server.URL, "tok").Transform("uploads/cat", "art", url.Values{"filter": {"zorro"}})
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/e_art:zorro/uploads/cat", u)
}

func TestClientCleanupSendsAdminToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/admin/cleanup", r.URL.Path)
		assert.Equal(t, "admin", r.Header.Get("X-Admin-Token"))
		io.WriteString(w, `{"cleanedShares":3,"cleanedCloudinary":1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	client.AdminToken = "admin"
	result, err := client.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 3, result.CleanedShares)
	assert.Equal(t, 1, result.CleanedAssets)
}

func TestUserFromToken(t *testing.T) {
	token, err := identity.NewVerifier("secret").IssueToken(identity.Session{
		UID: "u1", Email: "ada@example.com", EmailVerified: true, Name: "Ada",
	}, time.Hour)
	require.NoError(t, err)

	user, exp, err := userFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada", user.Name)
	require.NotNil(t, exp)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *exp, time.Minute)

	_, _, err = userFromToken("garbage")
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "ada@example.com", displayName(&cachedUser{UID: "u1", Email: "ada@example.com"}))
	assert.Equal(t, "u1", displayName(&cachedUser{UID: "u1"}))
	assert.Equal(t, "anonymous user u1", displayName(&cachedUser{UID: "u1", Anonymous: true}))
}

func TestSelectAll(t *testing.T) {
	sel := selectAll([]string{"a", "b", "a", "c"})
	assert.Equal(t, []string{"b", "c"}, sel.IDs())

	assert.Equal(t, 0, selectAll(nil).Len())
}

func TestGalleryListCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"files": []model.FileRecord{
			{PublicID: "uploads/zebra", Name: "zebra.png", Type: "image/png", Size: 10},
			{PublicID: "uploads/clip", Name: "clip.mp4", Type: "video/mp4", Size: 20},
			{PublicID: "uploads/apple", Name: "apple.jpg", Type: "image/jpeg", Size: 30},
		}})
	}))
	defer server.Close()

	var buf bytes.Buffer
	out = &buf
	defer func() { out = os.Stdout }()

	rootCmd.SetArgs([]string{"gallery", "ls", "--filter", "images", "--sort", "name", "--server", server.URL})
	require.NoError(t, rootCmd.Execute())

	output := buf.String()
	assert.NotContains(t, output, "clip.mp4")
	require.Contains(t, output, "apple.jpg")
	require.Contains(t, output, "zebra.png")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("apple.jpg")), bytes.Index(buf.Bytes(), []byte("zebra.png")))
}
