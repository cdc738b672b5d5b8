package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectInvestorSection(t *testing.T) {
	lines := []string{
		"Consolidated Account Statement",
		"Personal Information",
		"Name: John Doe",
		"PAN: ABCDE1234F",
		"Email: john@example.com",
	}

	sections := Detect(lines)
	assert.NotEmpty(t, AllByType(sections, StateInvestor))
}

func TestDetectHoldingsSection(t *testing.T) {
	lines := []string{
		"Some header",
		"Mutual Fund Summary",
		"Scheme Name          ISIN           Folio     Units     NAV      Value",
		"HDFC Equity Fund    INF179K01234   12345     100.00    45.67    4567.00",
	}

	sections := Detect(lines)
	assert.NotEmpty(t, AllByType(sections, StateHoldings))
}

func TestDetectTransactionSection(t *testing.T) {
	lines := []string{
		"Personal Information",
		"Name: John Doe",
		"PAN: ABCDE1234F",
		"Transaction Statement",
		"Date        Description     Amount    Units     NAV      Balance",
		"15-Jan-2024 Purchase       10000.00  219.123   45.67   1000.567",
	}

	sections := Detect(lines)
	assert.NotEmpty(t, AllByType(sections, StateTransaction))
}

func TestDetectFullDocument(t *testing.T) {
	lines := []string{
		"CDSL Consolidated Account Statement",
		"",
		"Personal Information",
		"Name: John Doe",
		"PAN: ABCDE1234F",
		"",
		"Mutual Fund Summary",
		"HDFC Equity Fund INF179K01234 12345 100.567 45.67 4592.88",
		"",
		"Transaction Statement",
		"15-Jan-2024 Purchase 10000.00 219.123 45.67 1000.567",
		"",
		"This is a computer generated statement",
	}

	sections := Detect(lines)

	assert.NotNil(t, ByType(sections, StateInvestor))
	assert.NotNil(t, ByType(sections, StateHoldings))

	tx := ByType(sections, StateTransaction)
	require.NotNil(t, tx)
	assert.Contains(t, tx.Lines, "15-Jan-2024 Purchase 10000.00 219.123 45.67 1000.567")
}

func TestEndMarkerClosesSection(t *testing.T) {
	lines := []string{
		"Personal Information",
		"Name: John Doe",
		"End of Statement",
		"trailing junk",
	}

	sections := Detect(lines)
	require.Len(t, sections, 1)
	assert.Equal(t, StateInvestor, sections[0].Type)
	assert.Equal(t, 0, sections[0].StartLine)
	assert.Equal(t, 2, sections[0].EndLine)
}

func TestEndStateIsTerminal(t *testing.T) {
	lines := []string{
		"Investor Details",
		"Name: A",
		"This is a computer generated statement",
		"Investor Details again",
	}

	sections := Detect(lines)
	require.Len(t, sections, 1)
	assert.Equal(t, StateInvestor, sections[0].Type)
	assert.Equal(t, 2, sections[0].EndLine)
}

func TestByTypeMissing(t *testing.T) {
	sections := Detect([]string{"nothing recognizable"})
	assert.Nil(t, ByType(sections, StateHoldings))
	assert.Empty(t, AllByType(sections, StateHoldings))
}

func TestHoldingsToTransactionsOnDatedLine(t *testing.T) {
	lines := []string{
		"Portfolio Summary",
		"HDFC Equity Fund INF179K01234 12345 100.567 45.67 4592.88",
		"01-Apr-2023 SIP Purchase 5000.00 109.123 45.82 109.123",
	}

	sections := Detect(lines)
	tx := ByType(sections, StateTransaction)
	require.NotNil(t, tx)
	assert.Equal(t, 2, tx.StartLine)
}
