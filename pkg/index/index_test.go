package index

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		selector    string
		expected    Index
		expectError bool
	}{
		{name: "btc", selector: "BTC", expected: BTC},
		{name: "eth", selector: "ETH", expected: ETH},
		{name: "lower case", selector: "btc", expected: BTC},
		{name: "surrounding whitespace", selector: " eth ", expected: ETH},
		{name: "api symbol is not a selector", selector: "BXBT", expectError: true},
		{name: "empty", selector: "", expectError: true},
		{name: "unknown", selector: "DOGE", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Parse(tt.selector)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tt.selector, idx)
				}
				if !errors.Is(err, ErrUnknownIndex) {
					t.Errorf("error %v should wrap ErrUnknownIndex", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.selector, err)
			}
			if idx != tt.expected {
				t.Errorf("Parse(%q) = %v, want %v", tt.selector, idx, tt.expected)
			}
		})
	}
}

func TestSymbol(t *testing.T) {
	if got := BTC.Symbol(); got != "BXBT" {
		t.Errorf("BTC.Symbol() = %q, want BXBT", got)
	}
	if got := ETH.Symbol(); got != "BETH" {
		t.Errorf("ETH.Symbol() = %q, want BETH", got)
	}
}

func TestMappingIsClosedAndTotal(t *testing.T) {
	seenSymbols := make(map[string]Index)

	for _, idx := range All() {
		if !idx.Valid() {
			t.Errorf("%d listed by All() but not valid", int(idx))
		}

		parsed, err := Parse(idx.String())
		if err != nil {
			t.Errorf("selector %q does not parse: %v", idx.String(), err)
		}
		if parsed != idx {
			t.Errorf("Parse(%q) = %v, want %v", idx.String(), parsed, idx)
		}

		if other, dup := seenSymbols[idx.Symbol()]; dup {
			t.Errorf("symbol %q shared by %v and %v", idx.Symbol(), other, idx)
		}
		seenSymbols[idx.Symbol()] = idx
	}

	if len(All()) != len(definitions) {
		t.Errorf("All() has %d entries, mapping table has %d", len(All()), len(definitions))
	}
}

func TestInvalidIndex(t *testing.T) {
	var zero Index
	if zero.Valid() {
		t.Error("zero value should not be a valid index")
	}
	if got := zero.String(); got != "Index(0)" {
		t.Errorf("String() = %q, want Index(0)", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("Symbol() on invalid index should panic")
		}
	}()
	_ = zero.Symbol()
}
