package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/marianozunino/cloudshare/internal/assethost"
	"github.com/marianozunino/cloudshare/internal/db"
	"github.com/marianozunino/cloudshare/internal/model"
)

var ErrImageNotFound = errors.New("gallery item not found")

// Store is the metadata the gallery reads and writes
type Store interface {
	GetUserDocument(ctx context.Context, uid string) (*model.UserDocument, error)
	AppendImage(ctx context.Context, uid string, rec model.FileRecord) error
	ReplaceImages(ctx context.Context, uid string, images []model.FileRecord, expectedVersion int64) error
	DeleteSharesByFile(ctx context.Context, uid, fileID string) (int64, error)
}

// Service implements the gallery operations
type Service struct {
	store        Store
	host         assethost.Host
	folder       string
	storageLimit int64
	now          func() time.Time
}

func NewService(store Store, host assethost.Host, folder string, storageLimit int64) *Service {
	return &Service{
		store:        store,
		host:         host,
		folder:       folder,
		storageLimit: storageLimit,
		now:          time.Now,
	}
}

// ItemError is one failed item of a batch
type ItemError struct {
	PublicID string `json:"publicId"`
	Error    string `json:"error"`
}

// BatchResult reports a best-effort batch delete
type BatchResult struct {
	Deleted []string    `json:"deleted"`
	Failed  []ItemError `json:"failed"`
}

// Partial reports whether some but not all items failed
func (r BatchResult) Partial() bool {
	return len(r.Failed) > 0 && len(r.Deleted) > 0
}

// List returns the user's gallery in stored order
func (s *Service) List(ctx context.Context, uid string) ([]model.FileRecord, error) {
	doc, err := s.store.GetUserDocument(ctx, uid)
	if errors.Is(err, db.ErrUserNotFound) {
		return []model.FileRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Images == nil {
		return []model.FileRecord{}, nil
	}
	return doc.Images, nil
}

// Save appends rec to the gallery, stamped with the current time
func (s *Service) Save(ctx context.Context, uid string, rec model.FileRecord) error {
	_, err := s.save(ctx, uid, rec)
	return err
}

// save returns the record exactly as it was stored
func (s *Service) save(ctx context.Context, uid string, rec model.FileRecord) (model.FileRecord, error) {
	if rec.PublicID == "" {
		return rec, assethost.ErrMissingPublicID
	}
	rec.CreatedAt = s.now()
	return rec, s.store.AppendImage(ctx, uid, rec)
}

// Upload stores the binary and adds it to the gallery. The asset is deleted
// again when the record cannot be written.
func (s *Service) Upload(ctx context.Context, uid string, in assethost.UploadInput) (*model.FileRecord, error) {
	if in.Folder == "" {
		in.Folder = s.folder
	}

	res, err := s.host.Upload(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", in.Filename, err)
	}

	rec, err := s.save(ctx, uid, model.FileRecord{
		PublicID:     res.PublicID,
		Name:         in.Filename,
		URL:          res.SecureURL,
		Type:         res.ContentType,
		Size:         res.Bytes,
		ResourceType: res.ResourceType,
	})
	if err != nil {
		log.Printf("Error: Failed to store gallery metadata: %v", err)
		if derr := s.host.Destroy(ctx, res.PublicID, assethost.ResourceType(res.ResourceType)); derr != nil {
			log.Printf("Warning: Failed to clean up asset after metadata error: %v", derr)
		}
		return nil, err
	}

	return &rec, nil
}

// Delete removes the asset and then its gallery entry. Links pointing at the
// entry are dropped as well.
func (s *Service) Delete(ctx context.Context, uid, publicID string) error {
	if publicID == "" {
		return assethost.ErrMissingPublicID
	}

	doc, err := s.store.GetUserDocument(ctx, uid)
	if errors.Is(err, db.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", publicID, ErrImageNotFound)
	}
	if err != nil {
		return err
	}

	idx := doc.FindImage(publicID)
	if idx < 0 {
		return fmt.Errorf("%s: %w", publicID, ErrImageNotFound)
	}

	img := doc.Images[idx]
	if err := assethost.DestroyStored(ctx, s.host, publicID, img.ResourceType, img.Type); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", publicID, err)
	}

	err = db.RetryOnConflict(ctx, func() error {
		doc, err := s.store.GetUserDocument(ctx, uid)
		if err != nil {
			return err
		}

		kept := make([]model.FileRecord, 0, len(doc.Images))
		for _, img := range doc.Images {
			if img.PublicID != publicID {
				kept = append(kept, img)
			}
		}
		if len(kept) == len(doc.Images) {
			return nil
		}
		return s.store.ReplaceImages(ctx, uid, kept, doc.Version)
	})
	if err != nil {
		return fmt.Errorf("failed to remove gallery item %s: %w", publicID, err)
	}

	if _, err := s.store.DeleteSharesByFile(ctx, uid, publicID); err != nil {
		log.Printf("Warning: Failed to delete links for %s: %v", publicID, err)
	}

	return nil
}

// DeleteMany deletes every id independently; one failure does not stop the
// rest
func (s *Service) DeleteMany(ctx context.Context, uid string, ids []string) BatchResult {
	result := BatchResult{Deleted: []string{}, Failed: []ItemError{}}

	for _, id := range ids {
		if err := s.Delete(ctx, uid, id); err != nil {
			log.Printf("Warning: Failed to delete %s in batch: %v", id, err)
			result.Failed = append(result.Failed, ItemError{PublicID: id, Error: err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}

	return result
}

// Stats sums the gallery's usage against the configured quota
func (s *Service) Stats(ctx context.Context, uid string) (model.StorageStats, error) {
	images, err := s.List(ctx, uid)
	if err != nil {
		return model.StorageStats{}, err
	}

	stats := model.StorageStats{TotalFiles: len(images), StorageLimit: s.storageLimit}
	for _, img := range images {
		stats.TotalStorage += img.Size
	}
	return stats, nil
}
