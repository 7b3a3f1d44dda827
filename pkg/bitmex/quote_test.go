package bitmex

import (
	"testing"
	"time"

	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
)

func TestDecodeQuotes(t *testing.T) {
	body := []byte(`[
		{"timestamp":"2023-01-01T01:00:00.000Z","symbol":".BXBT","lastPrice":17001.25},
		{"timestamp":"2023-01-01T02:00:00.000+02:00","lastPrice":16999.6}
	]`)

	quotes, err := decodeQuotes(body)
	if err != nil {
		t.Fatalf("decodeQuotes() error = %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("decoded %d quotes, want 2", len(quotes))
	}

	want0 := time.Date(2023, 1, 1, 1, 0, 0, 0, time.UTC)
	if !quotes[0].Timestamp.Equal(want0) || quotes[0].Timestamp.Location() != time.UTC {
		t.Errorf("quotes[0].Timestamp = %v, want %v in UTC", quotes[0].Timestamp, want0)
	}
	if quotes[0].Price.String() != "17001.25" {
		t.Errorf("quotes[0].Price = %s, want 17001.25", quotes[0].Price)
	}

	// offsets are normalized to UTC
	want1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := quotes[1].Timestamp; !got.Equal(want1) || got.Location() != time.UTC || got.Hour() != 0 {
		t.Errorf("quotes[1].Timestamp = %v, want %v", got, want1)
	}
}

func TestDecodeQuotes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>oops</html>`},
		{name: "object instead of array", body: `{"error":"x"}`},
		{name: "null body", body: `null`},
		{name: "missing timestamp", body: `[{"lastPrice":1.5}]`},
		{name: "null price", body: `[{"timestamp":"2023-01-01T00:00:00.000Z","lastPrice":null}]`},
		{name: "missing price", body: `[{"timestamp":"2023-01-01T00:00:00.000Z"}]`},
		{name: "bad timestamp", body: `[{"timestamp":"yesterday","lastPrice":1}]`},
		{name: "string price", body: `[{"timestamp":"2023-01-01T00:00:00.000Z","lastPrice":"abc"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeQuotes([]byte(tt.body)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestDecodeQuotes_EmptyArray(t *testing.T) {
	quotes, err := decodeQuotes([]byte(`[]`))
	if err != nil {
		t.Fatalf("decodeQuotes() error = %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("decoded %d quotes, want 0", len(quotes))
	}
}

func TestGranularity(t *testing.T) {
	tests := []struct {
		granularity    Granularity
		idx            index.Index
		samplesPerHour int
		filter         string
	}{
		{Minute, index.BTC, 60, `{"symbol":".BXBT","timestamp.ss":0}`},
		{Hour, index.BTC, 1, `{"symbol":".BXBT","timestamp.mm":0,"timestamp.ss":0}`},
		{Minute, index.ETH, 60, `{"symbol":".BETH","timestamp.ss":0}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.granularity)+"/"+tt.idx.String(), func(t *testing.T) {
			if got := tt.granularity.SamplesPerHour(); got != tt.samplesPerHour {
				t.Errorf("SamplesPerHour() = %d, want %d", got, tt.samplesPerHour)
			}
			if got := tt.granularity.Filter(tt.idx); got != tt.filter {
				t.Errorf("Filter() = %s, want %s", got, tt.filter)
			}
		})
	}
}

func TestParseGranularity(t *testing.T) {
	for _, s := range []string{"minute", "hour"} {
		if g, err := ParseGranularity(s); err != nil || string(g) != s {
			t.Errorf("ParseGranularity(%q) = %q, %v", s, g, err)
		}
	}
	if _, err := ParseGranularity("day"); err == nil {
		t.Error("ParseGranularity(\"day\") should fail")
	}
}
