package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		ok   bool
		want time.Time
	}{
		{"rfc3339", "2024-10-10T10:10:10Z", true, want},
		{"rfc3339 nano", "2024-10-10T10:10:10.000Z", true, want},
		{"date", "2024-10-10", true, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)},
		{"unix seconds", "1728555010", true, want},
		{"unix millis", "1728555010000", true, want},
		{"padded", " 1728555010 ", true, want},
		{"empty", "", false, time.Time{}},
		{"zero", "0", false, time.Time{}},
		{"words", "yesterday", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, got.Equal(tt.want), "got %s", got)
		})
	}
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

	from, to := ResolveRange("", "", now, time.Hour)
	assert.True(t, to.Equal(now))
	assert.True(t, from.Equal(now.Add(-time.Hour)))

	from, to = ResolveRange("2024-10-10T13:00:00Z", "2024-10-10T11:00:00Z", now, time.Hour)
	assert.Equal(t, 11, from.Hour())
	assert.Equal(t, 13, to.Hour())

	from, to = ResolveRange("", "garbage", now, 2*time.Hour)
	assert.True(t, to.Equal(now))
	assert.True(t, from.Equal(now.Add(-2*time.Hour)))
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("  btcusdt "))
}
