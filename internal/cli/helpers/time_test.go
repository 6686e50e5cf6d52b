package helpers

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		since   string
		want    time.Time
		wantErr bool
	}{
		{name: "empty is unbounded", since: "", want: time.Time{}},
		{name: "relative minutes", since: "5m", want: now.Add(-5 * time.Minute)},
		{name: "relative hours", since: "24h", want: now.Add(-24 * time.Hour)},
		{name: "now", since: "now", want: now},
		{name: "rfc3339", since: "2026-03-14T10:30:00Z", want: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)},
		{name: "date", since: "2026-03-01", want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local)},
		{name: "negative duration", since: "-1h", wantErr: true},
		{name: "garbage", since: "yesterday-ish", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSince(tt.since, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSince(%q) error = %v, wantErr %v", tt.since, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseSince(%q) = %v, want %v", tt.since, got, tt.want)
			}
		})
	}
}
