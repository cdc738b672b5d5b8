package crossval

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestRepairNAVOutOfRange(t *testing.T) {
	// Garbled NAV of -5000; the true value is amount / |units|.
	amt, un, nav := Repair(d("600000"), d("-54972"), d("-5000"))
	require.NotNil(t, nav)
	assert.True(t, nav.Equal(decimal.RequireFromString("10.9146")),
		"got nav %s", nav)
	assert.True(t, amt.Equal(decimal.RequireFromString("600000")))
	assert.True(t, un.Equal(decimal.RequireFromString("-54972")))
}

func TestRepairCorruptAmount(t *testing.T) {
	// Amount inflated by column bleed; |units| × nav gives the true value.
	amt, un, nav := Repair(d("949000000"), d("-54972"), d("11"))
	assert.True(t, amt.Equal(decimal.RequireFromString("604692")), "got amount %s", amt)
	assert.True(t, un.Equal(decimal.RequireFromString("-54972")))
	assert.True(t, nav.Equal(decimal.RequireFromString("11")))
}

func TestRepairCorruptUnits(t *testing.T) {
	// Units off by 100x; amount / nav recovers them, sign preserved.
	amt, un, nav := Repair(d("1961"), d("10000"), d("19.61"))
	assert.True(t, un.Equal(decimal.RequireFromString("100")), "got units %s", un)
	assert.True(t, amt.Equal(decimal.RequireFromString("1961")))
	assert.True(t, nav.Equal(decimal.RequireFromString("19.61")))
}

func TestRepairCorruptUnitsKeepsSign(t *testing.T) {
	_, un, _ := Repair(d("1961"), d("-10000"), d("19.61"))
	assert.True(t, un.Equal(decimal.RequireFromString("-100")), "got units %s", un)
}

func TestRepairNAVUnrepairableLeftAlone(t *testing.T) {
	// Recomputed NAV of 0.05 is itself implausible, so the corrupt value
	// stays rather than being replaced by another bad guess.
	_, _, nav := Repair(d("50"), d("1000"), d("-1"))
	assert.True(t, nav.Equal(decimal.RequireFromString("-1")), "got nav %s", nav)
}

func TestRepairConsistentTripleUnchanged(t *testing.T) {
	amt, un, nav := Repair(d("5000.05"), d("458.123"), d("10.915"))
	assert.True(t, amt.Equal(decimal.RequireFromString("5000.05")))
	assert.True(t, un.Equal(decimal.RequireFromString("458.123")))
	assert.True(t, nav.Equal(decimal.RequireFromString("10.915")))
}

func TestRepairZeroValuesUnchanged(t *testing.T) {
	amt, un, nav := Repair(d("100"), d("0"), d("0"))
	assert.True(t, amt.Equal(decimal.RequireFromString("100")))
	assert.True(t, un.IsZero())
	assert.True(t, nav.IsZero())
}

func TestRepairAbsentFieldsUnchanged(t *testing.T) {
	amt, un, nav := Repair(d("33.18"), nil, nil)
	require.NotNil(t, amt)
	assert.True(t, amt.Equal(decimal.RequireFromString("33.18")))
	assert.Nil(t, un)
	assert.Nil(t, nav)
}

func TestRepairModerateMismatchUnchanged(t *testing.T) {
	// Off by 5%: outside tolerance but below any corruption ratio,
	// so nothing can be blamed and the triple passes through.
	amt, un, nav := Repair(d("5250"), d("458.123"), d("10.915"))
	assert.True(t, amt.Equal(decimal.RequireFromString("5250")))
	assert.True(t, un.Equal(decimal.RequireFromString("458.123")))
	assert.True(t, nav.Equal(decimal.RequireFromString("10.915")))
}
