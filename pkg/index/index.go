// Package index defines the closed set of BitMEX composite price indices the
// feeder can publish outcomes for.
package index

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownIndex is returned when a selector does not name a supported index.
var ErrUnknownIndex = errors.New("unknown index")

// Index identifies a composite price index tracked by BitMEX.
type Index int

const (
	// BTC is the Bitcoin/USD composite index (.BXBT).
	BTC Index = iota + 1

	// ETH is the Ether/USD composite index (.BETH).
	ETH
)

type definition struct {
	selector string
	symbol   string
}

// definitions is the exhaustive mapping table. Adding an index means adding a
// constant above and one entry here.
var definitions = map[Index]definition{
	BTC: {selector: "BTC", symbol: "BXBT"},
	ETH: {selector: "ETH", symbol: "BETH"},
}

// All returns every supported index in declaration order.
func All() []Index {
	return []Index{BTC, ETH}
}

// Parse maps a selector such as "BTC" to its Index. Matching is case-insensitive.
func Parse(selector string) (Index, error) {
	normalized := strings.ToUpper(strings.TrimSpace(selector))
	for _, idx := range All() {
		if definitions[idx].selector == normalized {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownIndex, selector, strings.Join(Selectors(), ", "))
}

// Selectors returns the accepted selector strings.
func Selectors() []string {
	out := make([]string, 0, len(definitions))
	for _, idx := range All() {
		out = append(out, definitions[idx].selector)
	}
	return out
}

// Symbol returns the API symbol without the leading dot, e.g. "BXBT".
func (i Index) Symbol() string {
	def, ok := definitions[i]
	if !ok {
		panic(fmt.Sprintf("index: symbol of invalid index %d", int(i)))
	}
	return def.symbol
}

// String returns the selector, e.g. "BTC".
func (i Index) String() string {
	if def, ok := definitions[i]; ok {
		return def.selector
	}
	return fmt.Sprintf("Index(%d)", int(i))
}

// Valid reports whether i is one of the declared variants.
func (i Index) Valid() bool {
	_, ok := definitions[i]
	return ok
}
