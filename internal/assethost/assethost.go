// Package assethost talks to the service that stores uploaded binaries.
package assethost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marianozunino/cloudshare/internal/config"
)

var (
	ErrAssetNotFound      = errors.New("asset not found")
	ErrMissingPublicID    = errors.New("public id is required")
	ErrTransformsDisabled = errors.New("transformations are not supported by this asset host")
	ErrHostUnavailable    = errors.New("asset host request failed")
)

// ResourceType is the asset host's media class
type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
	ResourceRaw   ResourceType = "raw"
)

// ResourceTypeFor maps a MIME type onto the resource type used for deletion
func ResourceTypeFor(mime string) ResourceType {
	if strings.HasPrefix(mime, "video") {
		return ResourceVideo
	}
	return ResourceImage
}

// DestroyStored deletes an asset recorded with the given resource type and
// MIME type. A stored resource type is trusted, so "not found" there means
// the asset is already gone. Without one, every resource type is tried
// before the asset counts as gone, since a guessed type answers "not found"
// for an asset that still exists under another.
func DestroyStored(ctx context.Context, h Host, publicID, stored, mime string) error {
	if stored != "" {
		return IgnoreNotFound(h.Destroy(ctx, publicID, ResourceType(stored)))
	}

	first := ResourceTypeFor(mime)
	candidates := []ResourceType{first}
	for _, rt := range []ResourceType{ResourceImage, ResourceVideo, ResourceRaw} {
		if rt != first {
			candidates = append(candidates, rt)
		}
	}

	for _, rt := range candidates {
		err := h.Destroy(ctx, publicID, rt)
		if !errors.Is(err, ErrAssetNotFound) {
			return err
		}
	}
	return nil
}

// UploadInput is a binary to store
type UploadInput struct {
	Body        io.Reader
	Filename    string
	ContentType string
	Folder      string
}

// UploadResult is what the host reports back for a stored binary
type UploadResult struct {
	PublicID     string `json:"public_id"`
	SecureURL    string `json:"secure_url"`
	Bytes        int64  `json:"bytes"`
	Format       string `json:"format"`
	ResourceType string `json:"resource_type"`
	ContentType  string `json:"-"`
}

// Host stores and deletes binaries
type Host interface {
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)
	Destroy(ctx context.Context, publicID string, resourceType ResourceType) error
}

// IgnoreNotFound treats an already deleted asset as a successful delete
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrAssetNotFound) {
		return nil
	}
	return err
}

// New builds the driver selected in cfg
func New(ctx context.Context, cfg config.AssetHost) (Host, error) {
	switch cfg.Driver {
	case config.DriverCloudinary, "":
		return NewCloudinary(cfg, &http.Client{Timeout: 5 * time.Minute}), nil
	case config.DriverS3:
		return NewS3(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("unknown asset host driver %q", cfg.Driver)
}

const sniffLen = 3072

type sniffed struct {
	body        io.Reader
	contentType string
	extension   string
}

// sniff detects the content type from the first bytes of in.Body and
// returns a reader that still yields the whole body
func sniff(in UploadInput) (sniffed, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return sniffed{}, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	out := sniffed{
		body:        io.MultiReader(bytes.NewReader(head), in.Body),
		contentType: in.ContentType,
		extension:   strings.TrimPrefix(mt.Extension(), "."),
	}

	if out.contentType == "" || strings.HasPrefix(out.contentType, "application/octet-stream") {
		out.contentType = mt.String()
	}

	return out, nil
}
