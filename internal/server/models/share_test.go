package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareRecord_IsRetrievable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rec     ShareRecord
		expired bool
		want    bool
	}{
		{"live", ShareRecord{ExpiresAt: now.Add(time.Second)}, false, true},
		{"expires exactly now", ShareRecord{ExpiresAt: now}, true, false},
		{"expired", ShareRecord{ExpiresAt: now.Add(-time.Hour)}, true, false},
		{"one-time unconsumed", ShareRecord{ExpiresAt: now.Add(time.Hour), DestroyOnDownload: true}, false, true},
		{"one-time consumed", ShareRecord{ExpiresAt: now.Add(time.Hour), DestroyOnDownload: true, Consumed: true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, tt.rec.IsExpired(now))
			assert.Equal(t, tt.want, tt.rec.IsRetrievable(now))
		})
	}
}
