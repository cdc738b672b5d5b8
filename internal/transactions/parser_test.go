package transactions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/casparse/internal/domain"
	"github.com/rumor-ml/casparse/internal/rules"
)

func newEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.LoadEmbedded()
	require.NoError(t, err)
	return engine
}

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func TestParsePurchase(t *testing.T) {
	lines := []string{
		"HDFC Flexi Cap Fund - Growth ISIN: INF179K01BB8",
		"Folio No: 12345678/11",
		"01-Apr-2024 Purchase - Systematic Investment (1) 25,000.00 580.123 43.0945 580.123",
	}

	got := Parse(lines, newEngine(t))
	require.Len(t, got, 1)

	tx := got[0]
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), tx.Date)
	assert.Equal(t, "Purchase - Systematic Investment (1)", tx.Description)
	assert.Equal(t, domain.TypeSIP, tx.Type)
	assert.True(t, tx.Units.Equal(d(t, "580.123")))
	assert.True(t, tx.BalanceUnits.Equal(d(t, "580.123")))
	assert.Equal(t, "12345678/11", tx.Folio)
	assert.Equal(t, "HDFC Flexi Cap Fund - Growth", tx.SchemeName)
	assert.Equal(t, "INF179K01BB8", tx.ISIN)
	require.NotNil(t, tx.Amount)
	assert.True(t, tx.Amount.Equal(d(t, "25000")))
	require.NotNil(t, tx.NAV)
	assert.True(t, tx.NAV.Equal(d(t, "43.0945")))
}

func TestParseRedemptionParenthesizedUnits(t *testing.T) {
	lines := []string{
		"Axis Bluechip Fund - Growth ISIN: INF846K01EW2",
		"Folio No: 998877/55",
		"15-May-2024 Redemption (580.123) 43.2100 0.000",
	}

	got := Parse(lines, newEngine(t))
	require.Len(t, got, 1)

	tx := got[0]
	assert.Equal(t, domain.TypeRedemption, tx.Type)
	assert.True(t, tx.Units.Equal(d(t, "-580.123")))
	assert.True(t, tx.BalanceUnits.IsZero())
	assert.Nil(t, tx.Amount)
	require.NotNil(t, tx.NAV)
	assert.True(t, tx.NAV.Equal(d(t, "43.21")))
}

func TestParseAlternateDateFormats(t *testing.T) {
	lines := []string{
		"Axis Bluechip Fund - Growth ISIN: INF846K01EW2",
		"01/04/2024 Purchase 25,000.00 580.123 43.0945",
		"2024-05-02 Purchase 25,000.00 580.123 43.0945",
	}

	got := Parse(lines, newEngine(t))
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), got[0].Date)
	assert.Equal(t, time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC), got[1].Date)
}

func TestParseDatedLineWithoutUnitsSkipped(t *testing.T) {
	lines := []string{
		"Axis Bluechip Fund - Growth ISIN: INF846K01EW2",
		"01-Apr-2024 Opening Balance 0.00",
	}

	got := Parse(lines, newEngine(t))
	assert.Empty(t, got)
}

func TestParseFolioChangeResetsScheme(t *testing.T) {
	lines := []string{
		"HDFC Flexi Cap Fund - Growth ISIN: INF179K01BB8",
		"Folio No: 111/22",
		"01-Apr-2024 Purchase 25,000.00 580.123 43.0945 580.123",
		"Folio No: 333/44",
		"02-Apr-2024 Purchase 25,000.00 580.123 43.0945 580.123",
	}

	got := Parse(lines, newEngine(t))
	require.Len(t, got, 2)

	assert.Equal(t, "111/22", got[0].Folio)
	assert.Equal(t, "INF179K01BB8", got[0].ISIN)
	assert.Equal(t, "HDFC Flexi Cap Fund - Growth", got[0].SchemeName)

	assert.Equal(t, "333/44", got[1].Folio)
	assert.Empty(t, got[1].ISIN)
	assert.Empty(t, got[1].SchemeName)
}

func TestParseExplicitBalanceLabel(t *testing.T) {
	lines := []string{
		"Axis Bluechip Fund - Growth ISIN: INF846K01EW2",
		"01-Apr-2024 Purchase 25,000.00 580.123 43.0945 Balance: 1,160.246",
	}

	got := Parse(lines, newEngine(t))
	require.Len(t, got, 1)
	assert.True(t, got[0].BalanceUnits.Equal(d(t, "1160.246")))
}

func TestParseRepairsCorruptAmount(t *testing.T) {
	lines := []string{
		"Axis Bluechip Fund - Growth ISIN: INF846K01EW2",
		"01-Apr-2024 Redemption 949,000,000.00 (54,972.000) 11.0000 0.000",
	}

	got := Parse(lines, newEngine(t))
	require.Len(t, got, 1)

	tx := got[0]
	require.NotNil(t, tx.Amount)
	assert.True(t, tx.Amount.Equal(d(t, "604692")), "got %s", tx.Amount)
	assert.True(t, tx.Units.Equal(d(t, "-54972")))
}
