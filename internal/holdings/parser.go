// Package holdings parses positions from an already-isolated holdings
// summary section. This is the fallback path for statement layouts that
// are not scheme-interleaved; numeric fields are assigned by decimal-place
// and magnitude heuristics rather than position.
package holdings

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/rumor-ml/casparse/internal/domain"
)

var (
	isinRe  = regexp.MustCompile(`\b(INF[A-Z0-9]{9})\b`)
	folioRe = regexp.MustCompile(`(?i)folio\s*(?:no\.?|number)?\s*:?\s*([A-Z0-9/]+(?:\s*/\s*[A-Z0-9]+)?)`)
	dateRe  = regexp.MustCompile(`(\d{2}-(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)-\d{4})`)

	numberRe      = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*\.\d{2,4})`)
	numericDataRe = regexp.MustCompile(`^\s*\d+[,.\d]*\s+\d+[,.\d]*\s+\d+[,.\d]*`)

	amcHeaderRe   = regexp.MustCompile(`(?i)mutual\s*fund`)
	amcTrailerRe  = regexp.MustCompile(`(?i)(registrar\s*:.*|advisor\s*:.*)`)
	registrarRe   = regexp.MustCompile(`(?i)(CAMS|KFintech|KFin|Franklin|Karvy)`)
	segregatedRe  = regexp.MustCompile(`(?i)segregated|seg\.?\s*portfolio`)
	labeledNAVRe  = regexp.MustCompile(`(?i)nav\s*:?\s*(\d+(?:,\d{3})*\.\d+)`)
	labeledUnitRe = regexp.MustCompile(`(?i)units?\s*:?\s*(\d+(?:,\d{3})*\.\d+)`)

	leadingDashRe  = regexp.MustCompile(`^\s*[-:–—]\s*`)
	registrarCutRe = regexp.MustCompile(`(?i)registrar\s*:.*`)
	isinLabelRe    = regexp.MustCompile(`(?i)\bisin\b\s*:?`)
)

// context tracks AMC/registrar/folio attribution across the section.
type context struct {
	amc       string
	registrar string
	folio     string
}

// Parse extracts holdings from the section lines. navDate is the fallback
// valuation date when none appears near a holding.
func Parse(lines []string, navDate time.Time) []domain.Holding {
	ctx := &context{}
	var out []domain.Holding

	log.WithField("lines", len(lines)).Debug("parsing holdings section")

	for i := 0; i < len(lines); {
		line := lines[i]

		if amc := extractAMC(line); amc != "" {
			ctx.amc = amc
			i++
			continue
		}
		if m := registrarRe.FindStringSubmatch(line); m != nil {
			ctx.registrar = m[1]
		}
		if m := folioRe.FindStringSubmatch(line); m != nil {
			newFolio := strings.TrimSpace(m[1])
			if ctx.folio != "" && ctx.folio != newFolio {
				log.WithFields(log.Fields{"old": ctx.folio, "new": newFolio}).
					Debug("folio changed in holdings section")
			}
			ctx.folio = newFolio
		}

		if isinRe.MatchString(line) {
			h, consumed := parseBlock(lines[i:], ctx, navDate)
			if h != nil {
				out = append(out, *h)
			}
			if consumed < 1 {
				consumed = 1
			}
			i += consumed
			continue
		}
		i++
	}

	log.WithField("holdings", len(out)).Debug("holdings section parsed")
	return out
}

// parseBlock parses one holding starting at an identifier-bearing line.
// Returns the holding (nil when the block lacks usable data) and the
// number of lines consumed.
func parseBlock(lines []string, ctx *context, defaultNAVDate time.Time) (*domain.Holding, int) {
	m := isinRe.FindStringSubmatch(lines[0])
	if m == nil {
		return nil, 0
	}
	isin := m[1]
	isSegregated := segregatedRe.MatchString(lines[0])

	scheme, consumed := extractSchemeName(lines)

	folio := ctx.folio
	for _, line := range head(lines, 5) {
		if fm := folioRe.FindStringSubmatch(line); fm != nil {
			folio = strings.TrimSpace(fm[1])
			break
		}
	}

	units, nav, value, navDate := extractNumericValues(head(lines, 8), defaultNAVDate)

	if scheme == "" || units == nil || nav == nil {
		log.WithFields(log.Fields{"isin": isin, "folio": folio}).
			Warn("incomplete holding block, skipping")
		return nil, consumed
	}

	if value == nil {
		v := units.Mul(*nav)
		value = &v
	}

	h := domain.NewHolding(scheme, isin, folio, *units, *nav, navDate, *value)
	h.Registrar = ctx.registrar
	h.AMC = ctx.amc
	h.IsSegregated = isSegregated
	return &h, consumed
}

// extractSchemeName accumulates the scheme name across up to 5 lines,
// stopping at a clearly numeric data line or the next identifier.
func extractSchemeName(lines []string) (string, int) {
	var parts []string
	consumed := 0

	for i, line := range head(lines, 5) {
		if numericDataRe.MatchString(line) {
			break
		}
		if i > 0 && (isinRe.MatchString(line) ||
			labeledNAVRe.MatchString(line) || labeledUnitRe.MatchString(line)) {
			break
		}

		cleaned := isinRe.ReplaceAllString(line, "")
		cleaned = folioRe.ReplaceAllString(cleaned, "")
		cleaned = numberRe.ReplaceAllString(cleaned, "")
		cleaned = registrarCutRe.ReplaceAllString(cleaned, "")
		cleaned = isinLabelRe.ReplaceAllString(cleaned, "")
		cleaned = leadingDashRe.ReplaceAllString(cleaned, "")
		cleaned = strings.Trim(cleaned, " -:")

		if len(cleaned) > 3 {
			parts = append(parts, cleaned)
		}
		consumed = i + 1

		if len(strings.Join(parts, " ")) > 40 {
			break
		}
	}

	name := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	name = leadingDashRe.ReplaceAllString(name, "")
	if consumed < 1 {
		consumed = 1
	}
	return name, consumed
}

// extractNumericValues assigns decimal tokens to units/NAV/value by
// decimal-place count and magnitude: units carry 3+ places, NAV 2-4
// places within [1, 10000], value exactly 2 places above 100. Explicitly
// labeled "units:"/"nav:" text backstops the heuristics.
func extractNumericValues(lines []string, defaultNAVDate time.Time) (units, nav, value *decimal.Decimal, navDate time.Time) {
	navDate = defaultNAVDate

	type token struct {
		value  decimal.Decimal
		places int
	}
	var tokens []token

	for _, line := range lines {
		if dm := dateRe.FindStringSubmatch(line); dm != nil {
			if d, err := time.Parse("02-Jan-2006", dm[1]); err == nil {
				navDate = d
			}
		}
		for _, nm := range numberRe.FindAllStringSubmatch(line, -1) {
			raw := nm[1]
			v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
			if err != nil {
				continue
			}
			places := 0
			if dot := strings.LastIndex(raw, "."); dot >= 0 {
				places = len(raw) - dot - 1
			}
			tokens = append(tokens, token{value: v, places: places})
		}
	}

	one := decimal.NewFromInt(1)
	navMax := decimal.NewFromInt(10000)
	hundred := decimal.NewFromInt(100)

	for _, tok := range tokens {
		v := tok.value
		switch {
		case units == nil && tok.places >= 3:
			units = &v
		case nav == nil && tok.places >= 2 && tok.places <= 4 &&
			v.GreaterThanOrEqual(one) && v.LessThanOrEqual(navMax):
			nav = &v
		case value == nil && tok.places == 2 && v.GreaterThan(hundred):
			value = &v
		}
	}

	for _, line := range lines {
		if nav == nil {
			if m := labeledNAVRe.FindStringSubmatch(line); m != nil {
				if v, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
					nav = &v
				}
			}
		}
		if units == nil {
			if m := labeledUnitRe.FindStringSubmatch(line); m != nil {
				if v, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
					units = &v
				}
			}
		}
	}

	return units, nav, value, navDate
}

func extractAMC(line string) string {
	if !amcHeaderRe.MatchString(line) {
		return ""
	}
	name := amcTrailerRe.ReplaceAllString(line, "")
	name = strings.Join(strings.Fields(name), " ")
	if len(name) <= 5 {
		return ""
	}
	return name
}

func head(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
