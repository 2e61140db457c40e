// Package share manages expiring share links and the shared-file listing.
package share

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marianozunino/cloudshare/internal/assethost"
	"github.com/marianozunino/cloudshare/internal/db"
	"github.com/marianozunino/cloudshare/internal/expiration"
	"github.com/marianozunino/cloudshare/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrShareNotFound   = errors.New("share not found")
	ErrShareExpired    = errors.New("share has expired")
	ErrAccessDenied    = errors.New("share is private")
	ErrInvalidPassword = errors.New("invalid share password")
	ErrInvalidInput    = errors.New("invalid share request")
)

var lazyExpired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cloudshare_lazy_expired_total",
	Help: "Expired shared files reconciled on read, by outcome",
}, []string{"outcome"})

// sweepConcurrency caps parallel asset deletions during a global sweep
const sweepConcurrency = 8

// Store is the metadata the share service reads and writes
type Store interface {
	GetUserDocument(ctx context.Context, uid string) (*model.UserDocument, error)
	AppendFile(ctx context.Context, uid string, rec model.ShareRecord) error
	ReplaceFiles(ctx context.Context, uid string, files []model.ShareRecord, expectedVersion int64) error
	PutShare(ctx context.Context, s *model.Share) error
	GetShare(ctx context.Context, id string) (*model.Share, error)
	DeleteShare(ctx context.Context, id string) error
	ListSharesByUser(ctx context.Context, uid string) ([]model.Share, error)
	ListSharesExpiredBefore(ctx context.Context, t time.Time) ([]model.Share, error)
	DeleteSharesBatch(ctx context.Context, ids []string) (int64, error)
	DeleteSharesByFile(ctx context.Context, uid, fileID string) (int64, error)
	IncrementShareCounter(ctx context.Context, id string, counter model.ShareCounter) error
}

// Service implements the share link lifecycle
type Service struct {
	store        Store
	host         assethost.Host
	shareBaseURL string
	now          func() time.Time
}

func NewService(store Store, host assethost.Host, shareBaseURL string) *Service {
	return &Service{
		store:        store,
		host:         host,
		shareBaseURL: shareBaseURL,
		now:          time.Now,
	}
}

// ExpiryFailure is an expired record that could not be removed
type ExpiryFailure struct {
	Record model.ShareRecord `json:"record"`
	Error  string            `json:"error"`
}

// ListResult is the outcome of listing a user's shared files
type ListResult struct {
	Live    []model.ShareRecord `json:"files"`
	Expired []model.ShareRecord `json:"expired"`
	Failed  []ExpiryFailure     `json:"failed,omitempty"`
}

// Link is a freshly created share link
type Link struct {
	ID        string     `json:"id"`
	URL       string     `json:"link"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// CreateOptions are the user's choices for a new link
type CreateOptions struct {
	Expiration string `json:"expiration"`
	AccessType string `json:"accessType"`
	Password   string `json:"password"`
}

func (s *Service) document(ctx context.Context, uid string) (*model.UserDocument, error) {
	doc, err := s.store.GetUserDocument(ctx, uid)
	if errors.Is(err, db.ErrUserNotFound) {
		return &model.UserDocument{UID: uid}, nil
	}
	return doc, err
}

// SortByExpiry orders records soonest-expiring first; records that never
// expire go last. Equal keys keep their order.
func SortByExpiry(records []model.ShareRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Expiry, records[j].Expiry
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
}

// ListLive returns the user's live shared files. Expired records found on
// the way are deleted from the asset host and then from the metadata; a
// record whose asset cannot be deleted stays in place and is reported in
// Failed. Calling it repeatedly converges on the same live set.
func (s *Service) ListLive(ctx context.Context, uid string) (*ListResult, error) {
	doc, err := s.document(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to load shared files: %w", err)
	}

	now := s.now()
	result := &ListResult{Live: []model.ShareRecord{}, Expired: []model.ShareRecord{}}
	removed := make(map[string]bool)

	for _, rec := range doc.Files {
		if rec.IsLive(now) {
			result.Live = append(result.Live, rec)
			continue
		}

		if err := assethost.DestroyStored(ctx, s.host, rec.PublicID, rec.ResourceType, rec.Type); err != nil {
			log.Printf("Warning: Failed to delete expired asset %s: %v", rec.PublicID, err)
			lazyExpired.WithLabelValues("failed").Inc()
			result.Failed = append(result.Failed, ExpiryFailure{Record: rec, Error: err.Error()})
			continue
		}
		removed[rec.PublicID] = true
		result.Expired = append(result.Expired, rec)
	}

	if len(removed) > 0 {
		if err := s.removeFiles(ctx, uid, removed); err != nil {
			// Assets are gone; the records get another chance on the next read
			log.Printf("Error: Failed to remove expired records for %s: %v", uid, err)
			for _, rec := range result.Expired {
				lazyExpired.WithLabelValues("failed").Inc()
				result.Failed = append(result.Failed, ExpiryFailure{Record: rec, Error: err.Error()})
			}
			result.Expired = []model.ShareRecord{}
		} else {
			lazyExpired.WithLabelValues("removed").Add(float64(len(removed)))
			for id := range removed {
				s.dropLinks(ctx, uid, id)
			}
		}
	}

	SortByExpiry(result.Live)
	return result, nil
}

// removeFiles deletes the records in ids from the user's file array,
// re-reading the document on every conflict
func (s *Service) removeFiles(ctx context.Context, uid string, ids map[string]bool) error {
	return db.RetryOnConflict(ctx, func() error {
		doc, err := s.store.GetUserDocument(ctx, uid)
		if err != nil {
			return err
		}

		kept := make([]model.ShareRecord, 0, len(doc.Files))
		for _, rec := range doc.Files {
			if !ids[rec.PublicID] {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(doc.Files) {
			return nil
		}

		return s.store.ReplaceFiles(ctx, uid, kept, doc.Version)
	})
}

// dropLinks deletes the link documents that point at a removed file
func (s *Service) dropLinks(ctx context.Context, uid, fileID string) {
	if _, err := s.store.DeleteSharesByFile(ctx, uid, fileID); err != nil {
		log.Printf("Warning: Failed to delete links for %s: %v", fileID, err)
	}
}

// StopSharing deletes the asset behind publicID and then its record. If the
// asset host refuses, nothing is removed.
func (s *Service) StopSharing(ctx context.Context, uid, publicID string) error {
	if publicID == "" {
		return assethost.ErrMissingPublicID
	}

	doc, err := s.document(ctx, uid)
	if err != nil {
		return err
	}

	idx := doc.FindFile(publicID)
	if idx < 0 {
		return fmt.Errorf("%s: %w", publicID, ErrFileNotFound)
	}
	rec := doc.Files[idx]

	if err := assethost.DestroyStored(ctx, s.host, publicID, rec.ResourceType, rec.Type); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", publicID, err)
	}

	if err := s.removeFiles(ctx, uid, map[string]bool{publicID: true}); err != nil {
		return fmt.Errorf("failed to remove shared file %s: %w", publicID, err)
	}

	s.dropLinks(ctx, uid, publicID)
	return nil
}

// Create stores a link document for one of the user's files. Links to a
// shared file own its asset; links to a gallery entry do not.
func (s *Service) Create(ctx context.Context, uid, fileID string, opts CreateOptions) (*Link, error) {
	if fileID == "" {
		return nil, assethost.ErrMissingPublicID
	}

	option, err := expiration.ParseOption(opts.Expiration)
	if err != nil {
		return nil, err
	}

	access, err := model.ParseAccessType(opts.AccessType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	doc, err := s.document(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	share := &model.Share{
		ID:         uuid.NewString(),
		FileID:     fileID,
		UserID:     uid,
		AccessType: access,
		ExpiresAt:  option.ExpiresAt(now),
		CreatedAt:  now,
	}

	if idx := doc.FindFile(fileID); idx >= 0 {
		rec := doc.Files[idx]
		share.URL = rec.URL
		share.AssetPublicID = rec.PublicID
		share.AssetResourceType = rec.ResourceType
		share.OwnsAsset = true
	} else if idx := doc.FindImage(fileID); idx >= 0 {
		rec := doc.Images[idx]
		share.URL = rec.URL
		share.AssetPublicID = rec.PublicID
		share.AssetResourceType = rec.ResourceType
	} else {
		return nil, fmt.Errorf("%s: %w", fileID, ErrFileNotFound)
	}

	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash share password: %w", err)
		}
		share.PasswordHash = string(hash)
	}

	if err := s.store.PutShare(ctx, share); err != nil {
		return nil, err
	}

	return &Link{
		ID:        share.ID,
		URL:       s.linkFor(share.ID),
		ExpiresAt: share.ExpiresAt,
	}, nil
}

func (s *Service) linkFor(id string) string {
	if strings.HasSuffix(s.shareBaseURL, "/") {
		return s.shareBaseURL + id
	}
	return s.shareBaseURL + "/" + id
}

// SaveFile appends rec to the user's shared files, stamped with the current
// time
func (s *Service) SaveFile(ctx context.Context, uid string, rec model.ShareRecord) error {
	_, err := s.saveFile(ctx, uid, rec)
	return err
}

// saveFile returns the record exactly as it was stored
func (s *Service) saveFile(ctx context.Context, uid string, rec model.ShareRecord) (model.ShareRecord, error) {
	if rec.PublicID == "" {
		return rec, assethost.ErrMissingPublicID
	}
	rec.CreatedAt = s.now()
	return rec, s.store.AppendFile(ctx, uid, rec)
}

// UploadShared stores the binary and records it as a shared file. If the
// record cannot be written the uploaded asset is deleted again.
func (s *Service) UploadShared(ctx context.Context, uid string, in assethost.UploadInput, expiresAt *time.Time) (*model.ShareRecord, error) {
	res, err := s.host.Upload(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", in.Filename, err)
	}

	rec, err := s.saveFile(ctx, uid, model.ShareRecord{
		PublicID:     res.PublicID,
		Name:         in.Filename,
		URL:          res.SecureURL,
		Type:         res.ContentType,
		Size:         res.Bytes,
		Format:       res.Format,
		ResourceType: res.ResourceType,
		Expiry:       expiresAt,
	})
	if err != nil {
		log.Printf("Error: Failed to store shared file metadata: %v", err)
		if derr := s.host.Destroy(ctx, res.PublicID, assethost.ResourceType(res.ResourceType)); derr != nil {
			log.Printf("Warning: Failed to clean up asset after metadata error: %v", derr)
		}
		return nil, err
	}

	return &rec, nil
}

func (s *Service) share(ctx context.Context, id string) (*model.Share, error) {
	share, err := s.store.GetShare(ctx, id)
	if errors.Is(err, db.ErrShareNotFound) {
		return nil, ErrShareNotFound
	}
	return share, err
}

// Get returns one of the user's links. Expired links are reconciled and
// reported as ErrShareExpired.
func (s *Service) Get(ctx context.Context, uid, id string) (*model.Share, error) {
	share, err := s.share(ctx, id)
	if err != nil {
		return nil, err
	}
	if share.UserID != uid {
		return nil, ErrShareNotFound
	}
	if !share.IsLive(s.now()) {
		s.expire(ctx, share)
		return nil, ErrShareExpired
	}
	return share, nil
}

// Links returns the user's live links, newest first
func (s *Service) Links(ctx context.Context, uid string) ([]model.Share, error) {
	shares, err := s.store.ListSharesByUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	live := make([]model.Share, 0, len(shares))
	for _, sh := range shares {
		if sh.IsLive(now) {
			live = append(live, sh)
		}
	}
	return live, nil
}

// Resolve opens a link for a visitor and counts the view or download
func (s *Service) Resolve(ctx context.Context, id, password string, download bool) (*model.Share, error) {
	share, err := s.share(ctx, id)
	if err != nil {
		return nil, err
	}

	if !share.IsLive(s.now()) {
		s.expire(ctx, share)
		return nil, ErrShareExpired
	}

	if share.AccessType == model.AccessPrivate {
		return nil, ErrAccessDenied
	}

	if share.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(share.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidPassword
		}
	}

	counter := model.CounterViews
	if download {
		counter = model.CounterDownloads
	}
	if err := s.store.IncrementShareCounter(ctx, id, counter); err != nil {
		log.Printf("Warning: Failed to count %s for share %s: %v", counter, id, err)
	} else if download {
		share.Downloads++
	} else {
		share.Views++
	}

	return share, nil
}

// expire reconciles a single expired link the way the global sweep would
func (s *Service) expire(ctx context.Context, share *model.Share) {
	if share.OwnsAsset && share.AssetPublicID != "" {
		err := assethost.DestroyStored(ctx, s.host, share.AssetPublicID, share.AssetResourceType, "")
		if err != nil {
			// Keep the document so the sweep retries the asset
			log.Printf("Warning: Failed to delete asset of expired share %s: %v", share.ID, err)
			return
		}
		s.detachFile(ctx, share.UserID, share.FileID)
	}

	if err := s.store.DeleteShare(ctx, share.ID); err != nil {
		log.Printf("Warning: Failed to delete expired share %s: %v", share.ID, err)
	}
}

// detachFile drops the shared-file record whose asset was deleted by a link
// expiring
func (s *Service) detachFile(ctx context.Context, uid, fileID string) {
	err := s.removeFiles(ctx, uid, map[string]bool{fileID: true})
	if err != nil && !errors.Is(err, db.ErrUserNotFound) {
		log.Printf("Warning: Failed to remove shared file %s of %s: %v", fileID, uid, err)
	}
}

// CleanupExpiredGlobally removes every link whose expiry has passed. Asset
// deletions run concurrently and their failures are only logged; the link
// documents are then deleted in a single batch.
func (s *Service) CleanupExpiredGlobally(ctx context.Context) (model.CleanupResult, error) {
	expired, err := s.store.ListSharesExpiredBefore(ctx, s.now())
	if err != nil {
		return model.CleanupResult{}, fmt.Errorf("failed to query expired shares: %w", err)
	}
	if len(expired) == 0 {
		return model.CleanupResult{}, nil
	}

	var (
		g        errgroup.Group
		cleaned  atomic.Int64
		mu       sync.Mutex
		detached []model.Share
	)
	g.SetLimit(sweepConcurrency)

	ids := make([]string, 0, len(expired))
	for _, sh := range expired {
		ids = append(ids, sh.ID)
		if !sh.OwnsAsset || sh.AssetPublicID == "" {
			continue
		}

		sh := sh
		g.Go(func() error {
			err := assethost.DestroyStored(ctx, s.host, sh.AssetPublicID, sh.AssetResourceType, "")
			if err != nil {
				log.Printf("Warning: Failed to delete asset %s of expired share %s: %v", sh.AssetPublicID, sh.ID, err)
				return nil
			}
			cleaned.Add(1)
			mu.Lock()
			detached = append(detached, sh)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	deleted, err := s.store.DeleteSharesBatch(ctx, ids)
	if err != nil {
		return model.CleanupResult{}, fmt.Errorf("failed to delete expired shares: %w", err)
	}

	for _, sh := range detached {
		s.detachFile(ctx, sh.UserID, sh.FileID)
	}

	return model.CleanupResult{
		CleanedShares: int(deleted),
		CleanedAssets: int(cleaned.Load()),
	}, nil
}
