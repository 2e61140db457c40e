package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marianozunino/cloudshare/internal/gallery"
	"github.com/marianozunino/cloudshare/internal/model"
	"github.com/marianozunino/cloudshare/internal/share"
)

// APIError is a non-success response from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL    string
	Token      string
	AdminToken string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

func (c *Client) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.BaseURL+strings.TrimPrefix(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// do sends req and decodes the body into out when the status is one of ok
func (c *Client) do(req *http.Request, out any, ok ...int) (int, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	accepted := false
	for _, code := range ok {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &msg) != nil || msg.Message == "" {
			msg.Message = strings.TrimSpace(string(body))
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg.Message}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) sendJSON(method, path string, in, out any, ok ...int) (int, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	req, err := c.newRequest(method, path, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, ok...)
}

func (c *Client) upload(path, filePath string, fields map[string]string, out any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if value != "" {
			writer.WriteField(key, value)
		}
	}

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fileWriter, file); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	writer.Close()

	req, err := c.newRequest(http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	_, err = c.do(req, out, http.StatusCreated)
	return err
}

// escapeID keeps a public id in one path segment
func escapeID(publicID string) string {
	return url.PathEscape(publicID)
}

func (c *Client) ListFiles() ([]model.FileRecord, error) {
	req, err := c.newRequest(http.MethodGet, "api/files", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Files []model.FileRecord `json:"files"`
	}
	if _, err := c.do(req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *Client) UploadFile(filePath string) (*model.FileRecord, error) {
	var rec model.FileRecord
	if err := c.upload("api/files", filePath, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteFiles removes the given gallery items. A partial failure is not an
// error; inspect the result.
func (c *Client) DeleteFiles(ids []string) (*gallery.BatchResult, error) {
	var result gallery.BatchResult
	_, err := c.sendJSON(http.MethodPost, "api/files/batch-delete",
		map[string][]string{"publicIds": ids}, &result, http.StatusOK, http.StatusMultiStatus)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Stats() (*model.StorageStats, error) {
	req, err := c.newRequest(http.MethodGet, "api/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats model.StorageStats
	if _, err := c.do(req, &stats, http.StatusOK); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) UploadShared(filePath, expires string) (*model.ShareRecord, error) {
	var rec model.ShareRecord
	if err := c.upload("api/shares", filePath, map[string]string{"expires": expires}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ListShares() (*share.ListResult, error) {
	req, err := c.newRequest(http.MethodGet, "api/shares", nil)
	if err != nil {
		return nil, err
	}
	var result share.ListResult
	if _, err := c.do(req, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) StopSharing(publicID string) error {
	req, err := c.newRequest(http.MethodDelete, "api/shares/"+escapeID(publicID), nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, nil, http.StatusNoContent)
	return err
}

func (c *Client) CreateLink(fileID string, opts share.CreateOptions) (*share.Link, error) {
	body := map[string]string{
		"fileId":     fileID,
		"expiration": opts.Expiration,
		"accessType": opts.AccessType,
		"password":   opts.Password,
	}
	var link share.Link
	if _, err := c.sendJSON(http.MethodPost, "api/links", body, &link, http.StatusCreated); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) ListLinks() ([]model.Share, error) {
	req, err := c.newRequest(http.MethodGet, "api/links", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Links []model.Share `json:"links"`
	}
	if _, err := c.do(req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Links, nil
}

func (c *Client) Transform(publicID, effect string, params url.Values) (string, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("effect", effect)

	req, err := c.newRequest(http.MethodGet, "api/transform/"+escapeID(publicID)+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		URL string `json:"url"`
	}
	if _, err := c.do(req, &resp, http.StatusOK); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) Cleanup() (*model.CleanupResult, error) {
	req, err := c.newRequest(http.MethodPost, "api/admin/cleanup", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Admin-Token", c.AdminToken)

	var result model.CleanupResult
	if _, err := c.do(req, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}
