package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size     int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatFileSize(tt.size))
	}
}

func TestUsagePercent(t *testing.T) {
	assert.Equal(t, 0.0, UsagePercent(10, 0))
	assert.Equal(t, 50.0, UsagePercent(512, 1024))
	assert.Equal(t, 100.0, UsagePercent(4096, 1024))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "-", FormatTimestamp(time.Time{}))

	ts := time.Date(2024, 12, 31, 15, 4, 0, 0, time.Local)
	assert.Equal(t, "Dec 31, 2024 at 3:04 PM", FormatTimestamp(ts))
}
