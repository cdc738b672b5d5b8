// Package validate checks a parsed statement for internal consistency:
// identifier formats, numeric sanity, and holding/transaction reconciliation.
// Findings are errors (invalidate the statement) or warnings (advisory);
// nothing here mutates the statement.
package validate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/rumor-ml/casparse/internal/domain"
)

var (
	// defaultValueTolerance is the relative tolerance for units×NAV
	// versus the stated current value.
	defaultValueTolerance = decimal.NewFromFloat(0.01)
	// defaultUnitsTolerance bounds the closing-balance versus holding
	// unit comparison.
	defaultUnitsTolerance = decimal.NewFromFloat(0.001)
)

// Validator runs consistency checks over a parsed statement.
type Validator struct {
	valueTolerance decimal.Decimal
	unitsTolerance decimal.Decimal
}

// New returns a Validator with the default tolerances.
func New() *Validator {
	return &Validator{
		valueTolerance: defaultValueTolerance,
		unitsTolerance: defaultUnitsTolerance,
	}
}

// NewWithTolerances returns a Validator with explicit tolerances.
func NewWithTolerances(valueTolerance, unitsTolerance decimal.Decimal) *Validator {
	return &Validator{
		valueTolerance: valueTolerance,
		unitsTolerance: unitsTolerance,
	}
}

// Validate runs all checks and returns the combined result.
func (v *Validator) Validate(st *domain.Statement) *domain.ValidationResult {
	result := domain.NewValidationResult()

	result.Merge(v.ValidateInvestor(&st.Investor))
	for i := range st.Holdings {
		result.Merge(v.ValidateHolding(&st.Holdings[i]))
	}
	for i := range st.Transactions {
		result.Merge(v.ValidateTransaction(&st.Transactions[i]))
	}
	result.Merge(v.ValidateReconciliation(st.Holdings, st.Transactions))
	result.Merge(v.checkOrphans(st.Holdings, st.Transactions))

	log.WithFields(log.Fields{
		"valid":    result.IsValid,
		"errors":   len(result.Errors),
		"warnings": len(result.Warnings),
	}).Info("statement validation complete")

	return result
}

// ValidateInvestor checks investor identity fields.
func (v *Validator) ValidateInvestor(inv *domain.Investor) *domain.ValidationResult {
	result := domain.NewValidationResult()

	switch {
	case inv.PAN == "":
		result.AddError("investor PAN is missing")
	case !domain.ValidPAN(inv.PAN):
		result.AddError("invalid PAN format: %s", inv.PAN)
	}

	switch {
	case inv.Name == "":
		result.AddError("investor name is missing")
	case len(inv.Name) < 2:
		result.AddWarning("investor name seems too short: %s", inv.Name)
	}

	if inv.Email != "" && !strings.Contains(inv.Email, "@") {
		result.AddWarning("invalid email format: %s", inv.Email)
	}

	return result
}

// ValidateHolding checks one holding's identifier, sign, NAV, and the
// units×NAV versus current-value identity.
func (v *Validator) ValidateHolding(h *domain.Holding) *domain.ValidationResult {
	result := domain.NewValidationResult()
	name := truncate(h.SchemeName, 50)

	switch {
	case h.ISIN == "":
		result.AddError("missing ISIN for holding: %s", name)
	case !domain.ValidISIN(h.ISIN):
		result.AddError("invalid ISIN format: %s", h.ISIN)
	}

	if h.Folio == "" {
		result.AddWarning("missing folio for holding: %s", name)
	}

	if h.Units.IsNegative() && !h.IsSegregated {
		result.AddWarning("negative units for non-segregated holding: %s (%s)",
			truncate(h.SchemeName, 30), h.Units)
	}

	if !h.NAV.IsPositive() {
		result.AddError("invalid NAV (<=0) for holding: %s", truncate(h.SchemeName, 30))
	}

	if h.Units.IsPositive() && h.NAV.IsPositive() && h.CurrentValue.IsPositive() {
		calculated := h.Units.Mul(h.NAV)
		diffRatio := calculated.Sub(h.CurrentValue).Abs().Div(h.CurrentValue)
		if diffRatio.GreaterThan(v.valueTolerance) {
			result.AddWarning("value mismatch for %s: calculated=%s, stated=%s, diff=%s%%",
				truncate(h.SchemeName, 30),
				calculated.StringFixed(2),
				h.CurrentValue.StringFixed(2),
				diffRatio.Mul(decimal.NewFromInt(100)).StringFixed(2))
		}
	}

	return result
}

// ValidateTransaction checks one transaction's identifier and the
// consistency between its type and unit sign.
func (v *Validator) ValidateTransaction(tx *domain.Transaction) *domain.ValidationResult {
	result := domain.NewValidationResult()
	day := tx.Date.Format("2006-01-02")

	switch {
	case tx.ISIN == "":
		result.AddWarning("missing ISIN for transaction on %s", day)
	case !domain.ValidISIN(tx.ISIN):
		result.AddWarning("invalid ISIN format in transaction: %s", tx.ISIN)
	}

	if tx.Folio == "" {
		result.AddWarning("missing folio for transaction on %s", day)
	}

	switch {
	case domain.OutflowType(tx.Type) && tx.Units.IsPositive():
		result.AddWarning("expected negative units for %s on %s, got %s",
			tx.Type, day, tx.Units)
	case domain.InflowType(tx.Type) && tx.Units.IsNegative():
		result.AddWarning("expected positive units for %s on %s, got %s",
			tx.Type, day, tx.Units)
	}

	if (domain.OutflowType(tx.Type) || domain.InflowType(tx.Type)) &&
		tx.NAV != nil && !tx.NAV.IsPositive() {
		result.AddWarning("invalid NAV (<=0) for transaction on %s", day)
	}

	if domain.ChargeType(tx.Type) && tx.Units.Abs().GreaterThan(decimal.NewFromInt(1)) {
		result.AddWarning("unexpected large unit change for %s: %s", tx.Type, tx.Units)
	}

	return result
}

// ValidateReconciliation groups transactions by (ISIN, folio) and compares
// the latest transaction's running balance against the holding's units.
func (v *Validator) ValidateReconciliation(holdings []domain.Holding, transactions []domain.Transaction) *domain.ValidationResult {
	result := domain.NewValidationResult()

	byKey := make(map[string][]domain.Transaction)
	for _, tx := range transactions {
		key := tx.ISIN + "|" + tx.Folio
		byKey[key] = append(byKey[key], tx)
	}

	for _, h := range holdings {
		group, ok := byKey[h.ISIN+"|"+h.Folio]
		if !ok {
			result.AddWarning("no transactions found for holding: %s (folio: %s)",
				truncate(h.SchemeName, 30), h.Folio)
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Date.Before(group[j].Date)
		})
		lastBalance := group[len(group)-1].BalanceUnits
		if !lastBalance.IsPositive() {
			continue
		}
		if lastBalance.Sub(h.Units).Abs().GreaterThan(v.unitsTolerance) {
			result.AddWarning("unit balance mismatch for %s: last_tx_balance=%s, holding_units=%s",
				truncate(h.SchemeName, 30), lastBalance, h.Units)
		}
	}

	return result
}

// checkOrphans flags transactions whose (ISIN, folio) has no holding.
func (v *Validator) checkOrphans(holdings []domain.Holding, transactions []domain.Transaction) *domain.ValidationResult {
	result := domain.NewValidationResult()

	holdingKeys := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		holdingKeys[h.ISIN+"|"+h.Folio] = struct{}{}
	}

	orphans := make(map[string]struct{})
	for _, tx := range transactions {
		if tx.ISIN == "" {
			continue
		}
		if _, ok := holdingKeys[tx.ISIN+"|"+tx.Folio]; !ok {
			orphans[tx.ISIN] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(orphans))
	for isin := range orphans {
		sorted = append(sorted, isin)
	}
	sort.Strings(sorted)
	for _, isin := range sorted {
		result.AddWarning("transactions found for ISIN %s with no corresponding holding", isin)
	}

	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// HoldingValueConsistent reports whether units×NAV matches the stated
// current value within the default tolerance. Holdings without positive
// units, NAV, and value cannot be checked and pass trivially.
func HoldingValueConsistent(h *domain.Holding) bool {
	if !h.Units.IsPositive() || !h.NAV.IsPositive() || !h.CurrentValue.IsPositive() {
		return true
	}
	diffRatio := h.Units.Mul(h.NAV).Sub(h.CurrentValue).Abs().Div(h.CurrentValue)
	return diffRatio.LessThanOrEqual(defaultValueTolerance)
}
