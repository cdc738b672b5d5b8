// Package crossval repairs corrupted numeric triples on transaction lines.
//
// Statement extractions occasionally garble one field of the
// amount / units / NAV triple (dropped decimal points, column bleed).
// The three values are mutually redundant (amount ≈ |units| × NAV), so a
// single corrupt field can be recomputed from the other two.
package crossval

import (
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	navMin = decimal.NewFromInt(1)
	navMax = decimal.NewFromInt(100000)

	// Ratio bounds splitting "amount is corrupt" from "units are corrupt".
	// A dropped decimal point inflates a value by 100x or more.
	amountCorruptRatio = decimal.NewFromInt(100)
	unitsCorruptRatio  = decimal.RequireFromString("0.01")
)

// Repair cross-validates a transaction's amount, units and NAV and
// recomputes whichever field is inconsistent with the other two.
// Inputs are not modified; repaired fields come back as fresh values.
// If any field is absent the triple cannot be checked and all three
// are returned unchanged.
func Repair(amount, units, nav *decimal.Decimal) (*decimal.Decimal, *decimal.Decimal, *decimal.Decimal) {
	if amount == nil || units == nil || nav == nil {
		return amount, units, nav
	}

	amt := *amount
	un := *units
	nv := *nav
	absUnits := un.Abs()
	absAmount := amt.Abs()

	// A non-positive or implausibly large NAV is corrupt regardless of the
	// ratio checks below. Recompute it from the other two fields, but only
	// adopt the result when it lands back in the plausible range.
	if !nv.IsPositive() || nv.GreaterThan(navMax) {
		if absAmount.IsPositive() && absUnits.IsPositive() {
			repaired := absAmount.Div(absUnits).Round(4)
			if repaired.GreaterThanOrEqual(navMin) && repaired.LessThanOrEqual(navMax) {
				log.WithFields(log.Fields{
					"nav":      nv.String(),
					"repaired": repaired.String(),
				}).Warn("nav outside plausible range, recomputed from amount and units")
				nv = repaired
			} else {
				log.WithFields(log.Fields{
					"nav":        nv.String(),
					"recomputed": repaired.String(),
				}).Warn("nav outside plausible range and recomputed value also implausible, leaving unrepaired")
			}
		}
	}

	if !nv.IsPositive() || absUnits.IsZero() {
		return &amt, &un, &nv
	}

	expected := absUnits.Mul(nv)
	if expected.IsZero() {
		return &amt, &un, &nv
	}

	ratio := absAmount.Div(expected)
	switch {
	case ratio.GreaterThanOrEqual(amountCorruptRatio):
		repaired := expected.Round(2)
		if amt.IsNegative() {
			repaired = repaired.Neg()
		}
		log.WithFields(log.Fields{
			"amount":   amt.String(),
			"repaired": repaired.String(),
		}).Warn("amount inconsistent with units and nav, recomputed")
		amt = repaired
	case ratio.LessThanOrEqual(unitsCorruptRatio):
		repaired := absAmount.Div(nv).Round(3)
		if un.IsNegative() {
			repaired = repaired.Neg()
		}
		log.WithFields(log.Fields{
			"units":    un.String(),
			"repaired": repaired.String(),
		}).Warn("units inconsistent with amount and nav, recomputed")
		un = repaired
	}

	return &amt, &un, &nv
}
