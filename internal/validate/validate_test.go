package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/casparse/internal/domain"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func dp(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	v := d(t, s)
	return &v
}

func testHolding(t *testing.T) domain.Holding {
	t.Helper()
	h := domain.NewHolding("Axis Bluechip Fund - Growth", "INF846K01EW2", "998877/55",
		d(t, "580.123"), d(t, "43.0945"), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		d(t, "25002.56"))
	return h
}

func testTransaction(t *testing.T) domain.Transaction {
	t.Helper()
	tx, err := domain.NewTransaction(
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		"Purchase", domain.TypePurchase,
		d(t, "580.123"), d(t, "580.123"),
		"998877/55", "Axis Bluechip Fund - Growth", "INF846K01EW2")
	require.NoError(t, err)
	tx.Amount = dp(t, "25000.00")
	tx.NAV = dp(t, "43.0945")
	return *tx
}

func testStatement(t *testing.T) *domain.Statement {
	t.Helper()
	st := domain.NewStatement(domain.NewInvestor("RAHUL SHARMA", "ABCDE1234F"))
	st.Holdings = []domain.Holding{testHolding(t)}
	st.Transactions = []domain.Transaction{testTransaction(t)}
	return st
}

func TestValidateCleanStatement(t *testing.T) {
	result := New().Validate(testStatement(t))

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateInvestorMissingPAN(t *testing.T) {
	inv := domain.Investor{Name: "RAHUL SHARMA"}
	result := New().ValidateInvestor(&inv)

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "PAN is missing")
}

func TestValidateInvestorMalformedPAN(t *testing.T) {
	inv := domain.Investor{Name: "RAHUL SHARMA", PAN: "abcde1234f"}
	result := New().ValidateInvestor(&inv)

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "invalid PAN format")
}

func TestValidateInvestorBadEmail(t *testing.T) {
	inv := domain.Investor{Name: "RAHUL SHARMA", PAN: "ABCDE1234F", Email: "not-an-email"}
	result := New().ValidateInvestor(&inv)

	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "invalid email format")
}

func TestValidateHoldingBadISIN(t *testing.T) {
	h := testHolding(t)
	h.ISIN = "INF846"
	result := New().ValidateHolding(&h)

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "invalid ISIN format")
}

func TestValidateHoldingNonPositiveNAV(t *testing.T) {
	h := testHolding(t)
	h.NAV = decimal.Zero
	result := New().ValidateHolding(&h)

	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "invalid NAV")
}

func TestValidateHoldingNegativeUnitsWarning(t *testing.T) {
	h := testHolding(t)
	h.Units = d(t, "-10.000")
	result := New().ValidateHolding(&h)

	assert.True(t, result.IsValid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "negative units")
}

func TestValidateHoldingSegregatedNegativeUnitsAllowed(t *testing.T) {
	h := testHolding(t)
	h.Units = d(t, "-10.000")
	h.IsSegregated = true
	result := New().ValidateHolding(&h)

	for _, w := range result.Warnings {
		assert.NotContains(t, w, "negative units")
	}
}

func TestValidateHoldingValueMismatch(t *testing.T) {
	h := testHolding(t)
	h.CurrentValue = d(t, "30000.00")
	result := New().ValidateHolding(&h)

	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "value mismatch")
}

func TestValidateTransactionUnitSignMismatch(t *testing.T) {
	tx := testTransaction(t)
	tx.Type = domain.TypeRedemption
	result := New().ValidateTransaction(&tx)

	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "expected negative units")
}

func TestValidateTransactionInflowNegativeUnits(t *testing.T) {
	tx := testTransaction(t)
	tx.Units = d(t, "-580.123")
	result := New().ValidateTransaction(&tx)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "expected positive units")
}

func TestValidateTransactionLargeChargeUnits(t *testing.T) {
	tx := testTransaction(t)
	tx.Type = domain.TypeStampDuty
	tx.Units = d(t, "5.000")
	result := New().ValidateTransaction(&tx)

	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "unexpected large unit change")
}

func TestValidateReconciliationBalanceMismatch(t *testing.T) {
	st := testStatement(t)
	st.Transactions[0].BalanceUnits = d(t, "999.999")

	result := New().ValidateReconciliation(st.Holdings, st.Transactions)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "unit balance mismatch")
}

func TestValidateReconciliationUsesLatestTransaction(t *testing.T) {
	st := testStatement(t)
	earlier := testTransaction(t)
	earlier.Date = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	earlier.BalanceUnits = d(t, "120.000")
	st.Transactions = append([]domain.Transaction{earlier}, st.Transactions...)

	result := New().ValidateReconciliation(st.Holdings, st.Transactions)
	assert.Empty(t, result.Warnings)
}

func TestValidateHoldingWithoutTransactions(t *testing.T) {
	st := testStatement(t)
	st.Transactions = nil

	result := New().ValidateReconciliation(st.Holdings, st.Transactions)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "no transactions found for holding")
}

func TestValidateOrphanTransactions(t *testing.T) {
	st := testStatement(t)
	orphan := testTransaction(t)
	orphan.ISIN = "INF179K01BB8"
	st.Transactions = append(st.Transactions, orphan)

	result := New().Validate(st)

	found := false
	for _, w := range result.Warnings {
		if w == "transactions found for ISIN INF179K01BB8 with no corresponding holding" {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", result.Warnings)
}

func TestHoldingValueConsistent(t *testing.T) {
	h := testHolding(t)
	assert.True(t, HoldingValueConsistent(&h))

	h.CurrentValue = d(t, "30000.00")
	assert.False(t, HoldingValueConsistent(&h))

	h.Units = decimal.Zero
	assert.True(t, HoldingValueConsistent(&h))
}
