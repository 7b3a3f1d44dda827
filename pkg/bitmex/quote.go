package bitmex

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
)

// Quote is one composite index sample. Timestamp is always in UTC.
type Quote struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// wireQuote is the row shape returned with columns=lastPrice,timestamp.
type wireQuote struct {
	Timestamp *time.Time          `json:"timestamp"`
	LastPrice decimal.NullDecimal `json:"lastPrice"`
}

// decodeQuotes parses a compositeIndex response body.
func decodeQuotes(body []byte) ([]Quote, error) {
	var rows []wireQuote
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, errors.New("expected a JSON array of quotes, got null")
	}

	quotes := make([]Quote, 0, len(rows))
	for i, row := range rows {
		if row.Timestamp == nil {
			return nil, fmt.Errorf("row %d: missing timestamp", i)
		}
		if !row.LastPrice.Valid {
			return nil, fmt.Errorf("row %d: missing lastPrice", i)
		}
		quotes = append(quotes, Quote{
			Timestamp: row.Timestamp.UTC(),
			Price:     row.LastPrice.Decimal,
		})
	}

	return quotes, nil
}

// Granularity selects which samples the server-side filter keeps.
type Granularity string

const (
	// Minute keeps samples taken on the minute.
	Minute Granularity = "minute"

	// Hour keeps samples taken on the hour.
	Hour Granularity = "hour"
)

// ParseGranularity accepts "minute" or "hour".
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Minute, Hour:
		return g, nil
	default:
		return "", errors.New("granularity must be \"minute\" or \"hour\"")
	}
}

// SamplesPerHour is the number of filtered samples in one hour.
func (g Granularity) SamplesPerHour() int {
	if g == Hour {
		return 1
	}
	return 60
}

// Filter builds the JSON filter parameter for idx at this granularity.
func (g Granularity) Filter(idx index.Index) string {
	filter := map[string]interface{}{
		"symbol":       "." + idx.Symbol(),
		"timestamp.ss": 0,
	}
	if g == Hour {
		filter["timestamp.mm"] = 0
	}

	// map keys marshal sorted, so the parameter is stable across runs
	data, _ := json.Marshal(filter)
	return string(data)
}
