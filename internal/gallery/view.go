// Package gallery holds the gallery projection (filter and sort), the
// multi-select state and the gallery operations.
package gallery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/marianozunino/cloudshare/internal/model"
)

var ErrInvalidView = errors.New("invalid gallery view")

// Filter narrows the gallery by media class
type Filter string

const (
	FilterAll       Filter = "all"
	FilterImages    Filter = "images"
	FilterVideos    Filter = "videos"
	FilterDocuments Filter = "documents"
)

// SortKey orders the gallery
type SortKey string

const (
	SortNewest SortKey = "newest"
	SortOldest SortKey = "oldest"
	SortName   SortKey = "name"
	SortSize   SortKey = "size"
)

var documentMarkers = []string{"pdf", "doc", "sheet", "text"}

// ParseFilter validates s; empty means all
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterImages, FilterVideos, FilterDocuments:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown filter %q", ErrInvalidView, s)
}

// ParseSortKey validates s; empty means newest
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortName, SortSize:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown sort %q", ErrInvalidView, s)
}

// Matches reports whether a record of the given MIME type passes f
func (f Filter) Matches(mime string) bool {
	switch f {
	case FilterImages:
		return strings.Contains(mime, "image")
	case FilterVideos:
		return strings.Contains(mime, "video")
	case FilterDocuments:
		for _, marker := range documentMarkers {
			if strings.Contains(mime, marker) {
				return true
			}
		}
		return false
	}
	return true
}

func createdMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (k SortKey) less(a, b model.FileRecord) bool {
	switch k {
	case SortNewest:
		return createdMillis(a.CreatedAt) > createdMillis(b.CreatedAt)
	case SortOldest:
		return createdMillis(a.CreatedAt) < createdMillis(b.CreatedAt)
	case SortName:
		return strings.Compare(a.Name, b.Name) < 0
	case SortSize:
		return a.Size > b.Size
	}
	return false
}

// Apply returns a new slice holding the records that pass filter, ordered
// by key. The input is left untouched and ties keep their input order.
func Apply(records []model.FileRecord, filter Filter, key SortKey) []model.FileRecord {
	out := make([]model.FileRecord, 0, len(records))
	for _, rec := range records {
		if filter.Matches(rec.Type) {
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return key.less(out[i], out[j])
	})

	return out
}

// View is the gallery projection: the full record list plus the active
// filter and sort. Visible is recomputed on every change.
type View struct {
	records []model.FileRecord
	filter  Filter
	sort    SortKey
	visible []model.FileRecord
}

func NewView(records []model.FileRecord) *View {
	v := &View{records: records, filter: FilterAll, sort: SortNewest}
	v.refresh()
	return v
}

func (v *View) refresh() {
	v.visible = Apply(v.records, v.filter, v.sort)
}

func (v *View) SetRecords(records []model.FileRecord) {
	v.records = records
	v.refresh()
}

func (v *View) SetFilter(f Filter) {
	v.filter = f
	v.refresh()
}

func (v *View) SetSort(k SortKey) {
	v.sort = k
	v.refresh()
}

func (v *View) Filter() Filter { return v.filter }

func (v *View) Sort() SortKey { return v.sort }

// Visible returns the current projection
func (v *View) Visible() []model.FileRecord {
	return v.visible
}

// IndexOf returns the position of publicID in the projection, or -1
func (v *View) IndexOf(publicID string) int {
	for i, rec := range v.visible {
		if rec.PublicID == publicID {
			return i
		}
	}
	return -1
}
