package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessRecord_IsFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		lastVerifiedAt time.Time
		windowDays     int
		want           bool
	}{
		{"verified just now", now, 7, true},
		{"inside window", now.Add(-6 * 24 * time.Hour), 7, true},
		{"exactly at boundary", now.Add(-7 * 24 * time.Hour), 7, false},
		{"past window", now.Add(-10 * 24 * time.Hour), 7, false},
		{"zero window is never fresh", now.Add(-time.Second), 0, false},
		{"long window", now.Add(-20 * 24 * time.Hour), 30, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &AccessRecord{LastVerifiedAt: tt.lastVerifiedAt}
			window := time.Duration(tt.windowDays) * 24 * time.Hour
			assert.Equal(t, tt.want, rec.IsFresh(window, now))
		})
	}
}

func TestAccessRecord_IsFresh_Monotonic(t *testing.T) {
	// For a fixed lastVerifiedAt, freshness holds iff now < lastVerifiedAt+window,
	// for every non-negative window.
	verified := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := &AccessRecord{LastVerifiedAt: verified}

	for days := 0; days <= 60; days++ {
		window := time.Duration(days) * 24 * time.Hour
		for _, offset := range []time.Duration{0, time.Hour, 24 * time.Hour, 45 * 24 * time.Hour} {
			now := verified.Add(offset)
			want := now.Before(verified.Add(window))
			assert.Equal(t, want, rec.IsFresh(window, now),
				"window=%dd offset=%s", days, offset)
		}
	}
}

func TestAccessRecord_HasTag(t *testing.T) {
	rec := &AccessRecord{Tags: []string{"tag-1", "tag-2"}}

	assert.True(t, rec.HasTag("tag-1"))
	assert.True(t, rec.HasTag("tag-2"))
	assert.False(t, rec.HasTag("tag-3"))

	empty := &AccessRecord{}
	assert.False(t, empty.HasTag("tag-1"))
}

func TestCheckStatus_IsTerminal(t *testing.T) {
	assert.False(t, CheckPending.IsTerminal())
	assert.False(t, CheckProcessing.IsTerminal())
	assert.True(t, CheckCompleted.IsTerminal())
	assert.True(t, CheckFailed.IsTerminal())
}
