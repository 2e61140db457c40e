package expiration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidOption = errors.New("invalid expiration option")
	ErrInvalidExpiry = errors.New("invalid expiration time")
)

// Option is one of the fixed link lifetimes offered when sharing
type Option string

const (
	Option1h    Option = "1h"
	Option24h   Option = "24h"
	Option3d    Option = "3d"
	Option7d    Option = "7d"
	Option30d   Option = "30d"
	OptionNever Option = "never"
)

var optionDurations = map[Option]time.Duration{
	Option1h:  time.Hour,
	Option24h: 24 * time.Hour,
	Option3d:  3 * 24 * time.Hour,
	Option7d:  7 * 24 * time.Hour,
	Option30d: 30 * 24 * time.Hour,
}

// Options lists the accepted options, shortest first
func Options() []Option {
	return []Option{Option1h, Option24h, Option3d, Option7d, Option30d, OptionNever}
}

// ParseOption validates s. Anything outside the fixed set is rejected.
func ParseOption(s string) (Option, error) {
	o := Option(s)
	if o == OptionNever {
		return o, nil
	}
	if _, ok := optionDurations[o]; ok {
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOption, s)
}

// Duration returns the lifetime of o; ok is false for never
func (o Option) Duration() (d time.Duration, ok bool) {
	d, ok = optionDurations[o]
	return d, ok
}

// ExpiresAt returns the absolute expiry for a link created at now, or nil
// when the link never expires
func (o Option) ExpiresAt(now time.Time) *time.Time {
	d, ok := o.Duration()
	if !ok {
		return nil
	}
	t := now.Add(d)
	return &t
}

// maxExpiryHours is the longest hour count a time.Duration can hold
const maxExpiryHours = math.MaxInt64 / int64(time.Hour)

var expiryFormats = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseExpiry reads the expiration of a shared upload. It accepts an option
// token, a whole number of hours, or an absolute date. The result must lie
// after now; "never" yields nil.
func ParseExpiry(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: expiration is required", ErrInvalidExpiry)
	}

	if o, err := ParseOption(s); err == nil {
		return o.ExpiresAt(now), nil
	}

	if hours, err := strconv.Atoi(s); err == nil {
		if hours <= 0 {
			return nil, fmt.Errorf("%w: hours must be positive", ErrInvalidExpiry)
		}
		if int64(hours) > maxExpiryHours {
			return nil, fmt.Errorf("%w: %d hours is too far in the future", ErrInvalidExpiry, hours)
		}
		t := now.Add(time.Duration(hours) * time.Hour)
		if !now.Before(t) {
			return nil, fmt.Errorf("%w: %d hours is out of range", ErrInvalidExpiry, hours)
		}
		return &t, nil
	}

	for _, format := range expiryFormats {
		if t, err := time.Parse(format, s); err == nil {
			if !now.Before(t) {
				return nil, fmt.Errorf("%w: %s is in the past", ErrInvalidExpiry, s)
			}
			return &t, nil
		}
	}

	return nil, fmt.Errorf("%w: unrecognized date/time format %q", ErrInvalidExpiry, s)
}

// Describe renders the remaining lifetime of a link for display
func Describe(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "Never expires"
	}
	if !now.Before(*expiresAt) {
		return "Expired"
	}

	left := expiresAt.Sub(now)
	hours := int(left / time.Hour)
	minutes := int(left%time.Hour) / int(time.Minute)

	switch {
	case hours == 0 && minutes == 0:
		return "Expires in a minute"
	case hours == 0:
		return fmt.Sprintf("Expires in %d minute%s", minutes, plural(minutes))
	case hours >= 48:
		days := hours / 24
		return fmt.Sprintf("Expires in %d days", days)
	}
	return fmt.Sprintf("Expires in %d hour%s", hours, plural(hours))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
