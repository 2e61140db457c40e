package assethost

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marianozunino/cloudshare/internal/config"
)

// Cloudinary is a client for the Cloudinary upload and admin REST API.
// Uploads are unsigned and go through an upload preset; deletes are signed
// with the API secret.
type Cloudinary struct {
	client       *http.Client
	apiBase      string
	cloudName    string
	apiKey       string
	apiSecret    string
	uploadPreset string
	folder       string
	now          func() time.Time
}

func NewCloudinary(cfg config.AssetHost, client *http.Client) *Cloudinary {
	if client == nil {
		client = http.DefaultClient
	}
	return &Cloudinary{
		client:       client,
		apiBase:      strings.TrimSuffix(cfg.APIBase, "/"),
		cloudName:    cfg.CloudName,
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		uploadPreset: cfg.UploadPreset,
		folder:       cfg.Folder,
		now:          time.Now,
	}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(resp *http.Response, data []byte, fallback string) error {
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("%w: %s: %s (status %d)", ErrHostUnavailable, fallback, apiErr.Error.Message, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s: status %d", ErrHostUnavailable, fallback, resp.StatusCode)
}

// Upload sends the binary to {api_base}/v1_1/{cloud}/auto/upload
func (c *Cloudinary) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	sn, err := sniff(in)
	if err != nil {
		return nil, err
	}

	folder := in.Folder
	if folder == "" {
		folder = c.folder
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", in.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, sn.body); err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	writer.WriteField("upload_preset", c.uploadPreset)
	writer.WriteField("folder", folder)
	if err := writer.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/auto/upload", c.apiBase, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: upload: %w", ErrHostUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp, data, "upload failed")
	}

	var result UploadResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.PublicID == "" {
		return nil, fmt.Errorf("upload response: %w", ErrMissingPublicID)
	}
	result.ContentType = sn.contentType
	if result.Format == "" {
		result.Format = sn.extension
	}

	return &result, nil
}

// sign computes the destroy signature: sha1 over the sorted parameters
// followed by the API secret
func (c *Cloudinary) sign(publicID string, timestamp int64) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("public_id=%s&timestamp=%d%s", publicID, timestamp, c.apiSecret)))
	return hex.EncodeToString(sum[:])
}

// Destroy deletes publicID. A result of "not found" maps to ErrAssetNotFound.
func (c *Cloudinary) Destroy(ctx context.Context, publicID string, resourceType ResourceType) error {
	if publicID == "" {
		return ErrMissingPublicID
	}
	if resourceType == "" {
		resourceType = ResourceImage
	}

	timestamp := c.now().Unix()
	form := url.Values{}
	form.Set("public_id", publicID)
	form.Set("api_key", c.apiKey)
	form.Set("timestamp", strconv.FormatInt(timestamp, 10))
	form.Set("signature", c.sign(publicID, timestamp))

	endpoint := fmt.Sprintf("%s/v1_1/%s/%s/destroy", c.apiBase, c.cloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: destroy: %w", ErrHostUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp, data, "destroy failed")
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to decode destroy response: %w", err)
	}

	switch result.Result {
	case "ok":
		return nil
	case "not found":
		return fmt.Errorf("%s: %w", publicID, ErrAssetNotFound)
	}
	return fmt.Errorf("%w: destroy %s: unexpected result %q", ErrHostUnavailable, publicID, result.Result)
}
