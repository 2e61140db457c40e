package model

import (
	"fmt"
	"time"
)

// AccessType controls who may open a share link
type AccessType string

const (
	AccessPublic   AccessType = "public"
	AccessSpecific AccessType = "specific"
	AccessPrivate  AccessType = "private"
)

// ParseAccessType validates s; an empty string means public
func ParseAccessType(s string) (AccessType, error) {
	switch AccessType(s) {
	case "":
		return AccessPublic, nil
	case AccessPublic, AccessSpecific, AccessPrivate:
		return AccessType(s), nil
	}
	return "", fmt.Errorf("unknown access type %q", s)
}

// ShareCounter names a share statistic
type ShareCounter string

const (
	CounterViews     ShareCounter = "views"
	CounterDownloads ShareCounter = "downloads"
)

// Share is the canonical record behind a share link
type Share struct {
	ID                string     `json:"id"`
	FileID            string     `json:"fileId"`
	UserID            string     `json:"userId"`
	AccessType        AccessType `json:"accessType"`
	PasswordHash      string     `json:"-"`
	URL               string     `json:"url,omitempty"`
	AssetPublicID     string     `json:"assetPublicId,omitempty"`
	AssetResourceType string     `json:"assetResourceType,omitempty"`
	OwnsAsset         bool       `json:"ownsAsset"`
	ExpiresAt         *time.Time `json:"expiresAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	Views             int64      `json:"views"`
	Downloads         int64      `json:"downloads"`
}

// HasPassword reports whether the link is password protected
func (s Share) HasPassword() bool {
	return s.PasswordHash != ""
}

// IsLive reports whether the link still resolves at now
func (s Share) IsLive(now time.Time) bool {
	return IsLive(s.ExpiresAt, now)
}
