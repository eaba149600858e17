package clock

import (
	"testing"
	"time"
)

func TestExtractEmptyToken(t *testing.T) {
	var e Extractor
	before := time.Now().UTC().Truncate(time.Microsecond)
	got, err := e.Extract("", []string{"avail", "AVAILABLE"})
	after := time.Now().UTC()
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Timestamp.Before(before) || got.Timestamp.After(after) {
		t.Errorf("Timestamp %v not within [%v, %v]", got.Timestamp, before, after)
	}
	if got.Duration != nil {
		t.Errorf("Duration = %v, want nil", got.Duration)
	}
}

func TestExtractISO(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  time.Time
	}{
		{
			name:  "no_fraction",
			token: "2021-06-15T10:00:00Z",
			want:  time.Date(2021, 6, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "with_microseconds",
			token: "2021-06-15T10:00:00.123456Z",
			want:  time.Date(2021, 6, 15, 10, 0, 0, 123456000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Extractor
			got, err := e.Extract(tt.token, nil)
			if err != nil {
				t.Fatalf("Extract(%q): %v", tt.token, err)
			}
			if !got.Timestamp.Equal(tt.want) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.want)
			}
		})
	}
}

func TestExtractDurationSuffix(t *testing.T) {
	var e Extractor
	got, err := e.Extract("2021-06-15T10:00:00Z@1.5", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Duration == nil || *got.Duration != 1.5 {
		t.Errorf("Duration = %v, want 1.5", got.Duration)
	}
	want := time.Date(2021, 6, 15, 10, 0, 0, 0, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want)
	}
}

func TestExtractRelativeISO(t *testing.T) {
	e := &Extractor{RelativeTime: true}

	first, err := e.Extract("2021-06-15T10:00:00Z", nil)
	if err != nil {
		t.Fatalf("Extract first: %v", err)
	}

	second, err := e.Extract("2021-06-15T10:00:01Z", nil)
	if err != nil {
		t.Fatalf("Extract second: %v", err)
	}

	gotDelta := second.Timestamp.Sub(first.Timestamp)
	if gotDelta != time.Second {
		t.Errorf("relative delta = %v, want 1s", gotDelta)
	}
}

func TestExtractInvalidToken(t *testing.T) {
	var e Extractor
	if _, err := e.Extract("not-a-timestamp", nil); err == nil {
		t.Fatal("expected error for malformed numeric token")
	}
}
