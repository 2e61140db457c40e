package model

import (
	"encoding/json"
	"time"
)

// FileRecord is a gallery entry stored in a user's image array
type FileRecord struct {
	PublicID     string    `json:"publicId"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	ResourceType string    `json:"resourceType,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// ShareRecord is a shared upload stored in a user's file array
type ShareRecord struct {
	PublicID     string     `json:"publicId"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Type         string     `json:"type"`
	Size         int64      `json:"size"`
	Format       string     `json:"format,omitempty"`
	ResourceType string     `json:"resourceType,omitempty"`
	Expiry       *time.Time `json:"expiry"`
	CreatedAt    time.Time  `json:"createdAt,omitempty"`
}

// UnmarshalJSON accepts the legacy expiresAt key when expiry is absent
func (r *ShareRecord) UnmarshalJSON(data []byte) error {
	type plain ShareRecord
	aux := struct {
		*plain
		ExpiresAt *time.Time `json:"expiresAt"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.Expiry == nil && aux.ExpiresAt != nil {
		r.Expiry = aux.ExpiresAt
	}
	return nil
}

// IsLive reports whether the record may still be shown at now
func (r ShareRecord) IsLive(now time.Time) bool {
	return IsLive(r.Expiry, now)
}

// IsLive is true when expiresAt is unset or still in the future
func IsLive(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || now.Before(*expiresAt)
}

// UserDocument is the per-user metadata document. Version changes on every
// write and guards whole-array replacement.
type UserDocument struct {
	UID       string        `json:"uid"`
	Email     string        `json:"email,omitempty"`
	Images    []FileRecord  `json:"image"`
	Files     []ShareRecord `json:"file"`
	Version   int64         `json:"version"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// FindImage returns the index of the gallery entry with publicID, or -1
func (d *UserDocument) FindImage(publicID string) int {
	for i, img := range d.Images {
		if img.PublicID == publicID {
			return i
		}
	}
	return -1
}

// FindFile returns the index of the shared entry with publicID, or -1
func (d *UserDocument) FindFile(publicID string) int {
	for i, f := range d.Files {
		if f.PublicID == publicID {
			return i
		}
	}
	return -1
}

// StorageStats summarizes a user's gallery usage
type StorageStats struct {
	TotalFiles   int   `json:"totalFiles"`
	TotalStorage int64 `json:"totalStorage"`
	StorageLimit int64 `json:"storageLimit"`
}

// CleanupResult reports what a global sweep removed
type CleanupResult struct {
	CleanedShares int `json:"cleanedShares"`
	CleanedAssets int `json:"cleanedCloudinary"`
}
