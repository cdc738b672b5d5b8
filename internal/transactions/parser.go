// Package transactions parses transaction history from an already-isolated
// transaction section. This is the fallback path for statement layouts that
// are not scheme-interleaved; numeric fields are assigned by decimal-place
// and magnitude heuristics rather than position.
package transactions

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/rumor-ml/casparse/internal/crossval"
	"github.com/rumor-ml/casparse/internal/domain"
	"github.com/rumor-ml/casparse/internal/rules"
)

var (
	isinRe  = regexp.MustCompile(`\b(INF[A-Z0-9]{9})\b`)
	folioRe = regexp.MustCompile(`(?i)folio\s*(?:no\.?|number)?\s*:?\s*([A-Z0-9/]+(?:\s*/\s*[A-Z0-9]+)?)`)

	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`(\d{2}-(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)-\d{4})`),
		regexp.MustCompile(`(\d{2}/\d{2}/\d{4})`),
		regexp.MustCompile(`(20\d{2}-\d{2}-\d{2})`),
	}

	// Minus or parenthesized notation marks negatives: -5,000.000 or (5,000.000).
	numberRe   = regexp.MustCompile(`(\(?-?\d{1,3}(?:,\d{3})*\.\d{2,4}\)?)`)
	balanceRe  = regexp.MustCompile(`(?i)(?:balance|bal\.?)\s*:?\s*(\d{1,3}(?:,\d{3})*\.\d{3,4})`)
	currencyRe = regexp.MustCompile(`(?:Rs\.?|INR|₹)`)
	commaIntRe = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b`)

	registrarCutRe  = regexp.MustCompile(`(?i)registrar\s*:.*`)
	leadingPunctRe  = regexp.MustCompile(`^[-–—:]+\s*`)
	trailingPunctRe = regexp.MustCompile(`\s*[-–—:]+$`)
)

var dateLayouts = []string{"02-Jan-2006", "02/01/2006", "2006-01-02"}

// context tracks scheme/folio/ISIN attribution across the section.
type context struct {
	scheme string
	folio  string
	isin   string
}

// Parse extracts transactions from the section lines, classifying each
// with the rules engine.
func Parse(lines []string, engine *rules.Engine) []domain.Transaction {
	ctx := &context{}
	var out []domain.Transaction

	log.WithField("lines", len(lines)).Debug("parsing transaction section")

	for i := 0; i < len(lines); {
		line := lines[i]
		updateContext(ctx, line)

		txDate, ok := extractDate(line)
		if !ok {
			i++
			continue
		}

		end := i + 3
		if end > len(lines) {
			end = len(lines)
		}
		tx, consumed := parseBlock(lines[i:end], txDate, ctx, engine)
		if tx != nil {
			out = append(out, *tx)
		}
		if consumed < 1 {
			consumed = 1
		}
		i += consumed
	}

	log.WithField("transactions", len(out)).Info("parsed transaction section")
	return out
}

func updateContext(ctx *context, line string) {
	if m := folioRe.FindStringSubmatch(line); m != nil {
		newFolio := strings.TrimSpace(m[1])
		if ctx.folio != "" && ctx.folio != newFolio {
			log.WithFields(log.Fields{"old": ctx.folio, "new": newFolio}).
				Debug("folio changed, resetting scheme context")
			ctx.isin = ""
			ctx.scheme = ""
		}
		ctx.folio = newFolio
	}
	if m := isinRe.FindStringSubmatch(line); m != nil {
		ctx.isin = m[1]
		if name := extractSchemeName(line); name != "" {
			ctx.scheme = name
		}
	}
}

func extractDate(line string) (time.Time, bool) {
	for i, re := range dateRes {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if t, err := time.Parse(dateLayouts[i], m[1]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractSchemeName strips ISIN/folio/number noise from an ISIN-bearing line,
// leaving the scheme name if enough text survives.
func extractSchemeName(line string) string {
	cleaned := isinRe.ReplaceAllString(line, "")
	cleaned = folioRe.ReplaceAllString(cleaned, "")
	cleaned = numberRe.ReplaceAllString(cleaned, "")
	cleaned = registrarCutRe.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "ISIN", "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = leadingPunctRe.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(cleaned, " -:")
	if len(cleaned) > 3 {
		return cleaned
	}
	return ""
}

func parseBlock(lines []string, txDate time.Time, ctx *context, engine *rules.Engine) (*domain.Transaction, int) {
	if len(lines) == 0 {
		return nil, 0
	}

	desc := extractDescription(lines[0])
	amount, units, nav, balance := extractValues(lines)
	if units == nil {
		// No unit quantity means this dated line is not a transaction.
		return nil, 1
	}

	txType := engine.Classify(desc, *units)
	if balance == nil {
		balance = &decimal.Decimal{}
	}

	tx, err := domain.NewTransaction(txDate, desc, txType, *units, *balance,
		ctx.folio, ctx.scheme, ctx.isin)
	if err != nil {
		log.WithError(err).WithField("line", lines[0]).Warn("skipping invalid transaction")
		return nil, 1
	}
	tx.Amount = amount
	tx.NAV = nav
	return tx, 1
}

func extractDescription(line string) string {
	desc := line
	for _, re := range dateRes {
		desc = re.ReplaceAllString(desc, "")
	}
	desc = numberRe.ReplaceAllString(desc, "")
	desc = commaIntRe.ReplaceAllString(desc, "")
	desc = currencyRe.ReplaceAllString(desc, "")
	desc = strings.Join(strings.Fields(desc), " ")
	desc = leadingPunctRe.ReplaceAllString(desc, "")
	desc = trailingPunctRe.ReplaceAllString(desc, "")
	return desc
}

// extractValues assigns amount, units, NAV, and balance from the numbers in
// the block. Units carry 3-4 decimal places; NAV sits in a plausible price
// band below the unit quantity; the amount is a larger 2-decimal figure.
func extractValues(lines []string) (amount, units, nav, balance *decimal.Decimal) {
	joined := strings.Join(lines, " ")
	if m := balanceRe.FindStringSubmatch(joined); m != nil {
		if v, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
			balance = &v
		}
	}

	type number struct {
		val    decimal.Decimal
		places int
	}
	var numbers []number
	for _, line := range lines {
		for _, raw := range numberRe.FindAllString(line, -1) {
			negative := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
			if negative {
				raw = raw[1 : len(raw)-1]
			}
			_, frac, _ := strings.Cut(raw, ".")
			v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
			if err != nil {
				continue
			}
			if negative {
				v = v.Neg()
			}
			numbers = append(numbers, number{val: v, places: len(frac)})
		}
	}

	navFloor := decimal.NewFromInt(1)
	navCeil := decimal.NewFromInt(10000)
	amountFloor := decimal.NewFromInt(100)

	for _, n := range numbers {
		abs := n.val.Abs()
		switch {
		case units == nil && n.places >= 3:
			v := n.val
			units = &v
		case nav == nil && n.places >= 2 && n.places <= 4 &&
			abs.GreaterThanOrEqual(navFloor) && abs.LessThanOrEqual(navCeil):
			if units != nil && abs.LessThan(units.Abs()) {
				v := n.val
				nav = &v
			}
		case amount == nil && n.places == 2 && abs.GreaterThan(amountFloor):
			v := abs
			amount = &v
		case balance == nil && n.places >= 3 && !n.val.IsNegative():
			v := n.val
			balance = &v
		}
	}

	amount, units, nav = crossval.Repair(amount, units, nav)
	return amount, units, nav, balance
}
