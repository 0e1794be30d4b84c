package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSymbol_AcceptsCaseAndWhitespaceVariants(t *testing.T) {
	sym, ok := ParseSymbol("  nifty ")
	assert.True(t, ok)
	assert.Equal(t, NIFTY, sym)
}

func TestParseSymbol_RejectsUnknownSymbol(t *testing.T) {
	_, ok := ParseSymbol("DOWJONES")
	assert.False(t, ok)
}

func TestMeta_ReturnsKnownMetadata(t *testing.T) {
	m, ok := Meta(BANKNIFTY)
	assert.True(t, ok)
	assert.Equal(t, "NIFTY BANK", m.DisplayName)
	assert.Equal(t, 100.0, m.StrikeSpacing)
}

func TestMeta_UnknownSymbolReturnsFalse(t *testing.T) {
	_, ok := Meta(Symbol("NOTREAL"))
	assert.False(t, ok)
}

func TestAllSymbols_ReturnsFixedThreeSymbolUniverseInStableOrder(t *testing.T) {
	assert.Equal(t, []Symbol{NIFTY, BANKNIFTY, SENSEX}, AllSymbols())
}
