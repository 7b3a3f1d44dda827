// Package outcome turns composite index quotes into outcome records: a stable,
// reproducible identifier paired with the observed value.
package outcome

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/bitmex"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
)

// TimestampLayout is the canonical second-precision rendering used in ids.
// It carries no zone marker.
const TimestampLayout = "2006-01-02T15:04:05"

var maxUint64 = decimal.RequireFromString("18446744073709551615")

// Record is a published outcome. It serializes as {"id":"...","outcome":"..."}.
type Record struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

// MarshalBinary encodes the record as JSON so it can be passed to Redis
// commands directly.
func (r Record) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// FormatError reports a timestamp that cannot be rendered with TimestampLayout.
type FormatError struct {
	Timestamp time.Time
	Reason    string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("format timestamp %s: %s", e.Timestamp.Format(time.RFC3339Nano), e.Reason)
}

// ID builds the record id for idx at ts: "/<SYMBOL>/<YYYY-MM-DDTHH:MM:SS>.price".
// Sub-second precision is dropped and ts is rendered in its own location, so
// callers pass UTC timestamps. The zero time is rejected.
func ID(idx index.Index, ts time.Time) (string, error) {
	if ts.IsZero() {
		return "", &FormatError{Timestamp: ts, Reason: "zero time"}
	}
	if year := ts.Year(); year < 0 || year > 9999 {
		return "", &FormatError{Timestamp: ts, Reason: fmt.Sprintf("year %d outside 0000-9999", year)}
	}
	return "/" + idx.Symbol() + "/" + ts.Format(TimestampLayout) + ".price", nil
}

// Value renders price truncated toward zero as an unsigned integer.
// Negative prices saturate to "0" and values beyond the uint64 range saturate
// to its maximum.
// TODO: carry sub-unit precision once indices quoted below 1.0 are supported.
func Value(price decimal.Decimal) string {
	if price.Sign() <= 0 {
		return "0"
	}

	whole := price.Truncate(0)
	if whole.GreaterThan(maxUint64) {
		whole = maxUint64
	}
	return whole.BigInt().String()
}

// MapQuote converts one quote into its outcome record.
func MapQuote(q bitmex.Quote, idx index.Index) (Record, error) {
	id, err := ID(idx, q.Timestamp)
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:      id,
		Outcome: Value(q.Price),
	}, nil
}

// MapQuotes converts quotes in order, stopping at the first failure.
func MapQuotes(quotes []bitmex.Quote, idx index.Index) ([]Record, error) {
	records := make([]Record, 0, len(quotes))
	for i, q := range quotes {
		rec, err := MapQuote(q, idx)
		if err != nil {
			return nil, fmt.Errorf("quote %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
