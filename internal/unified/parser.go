// Package unified parses consolidated account statements in the
// scheme-interleaved layout, where each scheme carries its own run of
// transactions followed by a closing balance. This is the primary parse
// path; section-split layouts fall back to the holdings and transactions
// packages.
package unified

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/rumor-ml/casparse/internal/crossval"
	"github.com/rumor-ml/casparse/internal/domain"
	"github.com/rumor-ml/casparse/internal/resolver"
	"github.com/rumor-ml/casparse/internal/rules"
)

var (
	amcRe        = regexp.MustCompile(`(?i)^([A-Za-z\s]+(?:Mutual Fund|MF))\s*$`)
	folioRe      = regexp.MustCompile(`(?i)Folio\s*No\s*:\s*([A-Z0-9/\s]+?)(?:\s+(?:KYC|PAN)|$)`)
	panRe        = regexp.MustCompile(`PAN\s*:\s*([A-Z]{5}[0-9]{4}[A-Z])`)
	isinMarkedRe = regexp.MustCompile(`ISIN\s*:\s*(INF[A-Z0-9]{9})`)
	partialRe    = regexp.MustCompile(`ISIN\s*:\s*(INF[A-Z0-9]{1,8})(?:\s|$|\()`)
	anyPartialRe = regexp.MustCompile(`ISIN\s*:\s*(INF[A-Z0-9]*)`)
	anyISINRe    = regexp.MustCompile(`\b(INF[A-Z0-9]{9})\b`)
	registrarRe  = regexp.MustCompile(`(?i)Registrar\s*:\s*(\w+)`)
	dateRe       = regexp.MustCompile(`^(\d{2}-[A-Za-z]{3}-\d{4})`)
	codePrefixRe = regexp.MustCompile(`^([A-Z0-9]{2,10})-(.+)$`)
	chargeRe     = regexp.MustCompile(`\*\*\*\s*(.+?)\s*\*\*\*\s*([\d,.]+)?`)

	closingRe = regexp.MustCompile(`(?i)Closing\s*Unit\s*Balance\s*:\s*([\d,]+\.\d+)\s*` +
		`NAV\s*on\s*(\d{2}-[A-Za-z]{3}-\d{4})\s*:\s*INR\s*([\d,]+\.\d+)\s*` +
		`.*?(?:Cost\s*Value|Total\s*Cost)\s*:\s*([\d,]+\.\d+)\s*` +
		`Market\s*Value.*?:\s*INR\s*([\d,]+\.\d+)`)

	emailRe  = regexp.MustCompile(`(?i)Email\s*(?:Id)?\s*:\s*([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)
	mobileRe = regexp.MustCompile(`(?i)Mobile\s*:\s*\+?(\d+)`)
	periodRe = regexp.MustCompile(`(\d{2}-[A-Za-z]{3}-\d{4})\s*To\s*(\d{2}-[A-Za-z]{3}-\d{4})`)
)

const (
	dateLayout = "02-Jan-2006"

	// isinLookahead bounds the forward search for a full identifier after
	// a truncated one. Scheme blocks are short; twenty lines spans the
	// block without reaching into the next scheme on most layouts.
	isinLookahead = 20

	// investorHeaderLines is how deep into the document investor details
	// are expected to appear.
	investorHeaderLines = 50

	schemeLookback = 3
)

// Result carries everything a single parse produced.
type Result struct {
	Investor      domain.Investor
	Holdings      []domain.Holding
	Transactions  []domain.Transaction
	Quarantine    []domain.QuarantineItem
	StatementDate time.Time
}

// Parser parses scheme-interleaved statements. It holds only immutable
// collaborators and is safe to reuse across parses; per-parse state lives
// in the run created by Parse.
type Parser struct {
	resolver *resolver.Resolver
	engine   *rules.Engine
}

// New creates a unified parser. The resolver supplies manual-override
// recovery for truncated identifiers; the engine classifies transaction
// descriptions.
func New(res *resolver.Resolver, engine *rules.Engine) *Parser {
	return &Parser{resolver: res, engine: engine}
}

// run is the per-parse state: the mutable context plus accumulators.
type run struct {
	p     *Parser
	lines []string
	ctx   Context

	holdings     []domain.Holding
	transactions []domain.Transaction
	quarantine   []domain.QuarantineItem
}

// Parse walks the lines in document order, maintaining the scheme context
// and emitting holdings, transactions and quarantine items. It never
// fails: unparseable lines are skipped and unresolvable records are
// quarantined rather than aborting the document.
func (p *Parser) Parse(lines []string) *Result {
	r := &run{p: p, lines: lines}

	head := lines
	if len(head) > investorHeaderLines {
		head = head[:investorHeaderLines]
	}
	investor, stmtDate := parseInvestor(head)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if m := amcRe.FindStringSubmatch(line); m != nil {
			r.ctx.AMC = strings.TrimSpace(m[1])
			continue
		}

		if m := folioRe.FindStringSubmatch(line); m != nil {
			newFolio := strings.ReplaceAll(strings.TrimSpace(m[1]), " ", "")
			if r.ctx.Folio != "" && r.ctx.Folio != newFolio {
				log.WithFields(log.Fields{"old": r.ctx.Folio, "new": newFolio}).
					Debug("folio changed, resetting scheme context")
				r.ctx.ResetScheme()
			}
			r.ctx.Folio = newFolio
			if pm := panRe.FindStringSubmatch(line); pm != nil {
				r.ctx.PAN = pm[1]
				if investor.PAN == "" {
					investor.PAN = pm[1]
				}
			}
			continue
		}

		if strings.Contains(line, "ISIN:") || strings.Contains(line, "ISIN :") {
			r.handleISINLine(line, i)
			continue
		}

		// Standalone full identifier with no marker keyword. Adopted only
		// when the context has none, to avoid stray token false positives.
		if m := anyISINRe.FindStringSubmatch(line); m != nil && r.ctx.ISIN == "" {
			if strings.HasSuffix(line, m[1]) || strings.Contains(strings.ToUpper(line), "ISIN") {
				r.ctx.ISIN = m[1]
				log.WithField("isin", r.ctx.ISIN).Debug("adopted standalone identifier")
			}
		}

		if dateRe.MatchString(line) {
			if tx := r.parseTransactionLine(line); tx != nil {
				if domain.BrokenISIN(tx.ISIN) {
					r.quarantineTransaction(*tx)
				} else {
					r.transactions = append(r.transactions, *tx)
				}
			}
			continue
		}

		if m := closingRe.FindStringSubmatch(line); m != nil {
			if h, err := r.parseClosingLine(m); err == nil {
				if domain.BrokenISIN(h.ISIN) {
					r.quarantineHolding(h)
				} else {
					r.holdings = append(r.holdings, h)
				}
			} else {
				log.WithError(err).Warn("failed to parse closing balance line")
			}
			continue
		}
	}

	log.WithFields(log.Fields{
		"holdings":     len(r.holdings),
		"transactions": len(r.transactions),
	}).Info("unified parse complete")
	if len(r.quarantine) > 0 {
		log.WithField("items", len(r.quarantine)).Warn("records quarantined with unresolved identifiers")
	}

	return &Result{
		Investor:      investor,
		Holdings:      r.holdings,
		Transactions:  r.transactions,
		Quarantine:    r.quarantine,
		StatementDate: stmtDate,
	}
}

// handleISINLine processes a line carrying an identifier marker: full
// extraction, truncated-identifier recovery, or quarantine sentinel.
func (r *run) handleISINLine(line string, i int) {
	isin := ""
	if m := isinMarkedRe.FindStringSubmatch(line); m != nil {
		isin = m[1]
	}

	if isin == "" {
		if m := partialRe.FindStringSubmatch(line); m != nil {
			isin = r.lookAheadForISIN(m[1], i)
		}
	}

	if isin != "" {
		if r.ctx.ISIN != "" && r.ctx.ISIN != isin {
			log.WithField("isin", isin).Debug("new identifier, resetting scheme name and registrar")
			r.ctx.ResetForISIN()
		}
		r.ctx.ISIN = isin
		r.parseSchemeLine(line, i)
		r.captureRegistrar(i)
		return
	}

	// No full identifier recoverable from the document itself. Consult
	// only the manual-override strategy: fuzzy resolution mid-parse is
	// too eager and a wrong guess corrupts the scheme's records.
	partial := ""
	if m := anyPartialRe.FindStringSubmatch(line); m != nil {
		partial = m[1]
	}
	scheme := schemeTextBeforeMarker(line)

	if r.p.resolver != nil {
		if resolved, ok := r.p.resolver.ResolveManual(partial, scheme); ok {
			log.WithFields(log.Fields{"partial": partial, "isin": resolved}).
				Info("recovered truncated identifier from manual override")
			if r.ctx.ISIN != "" && r.ctx.ISIN != resolved {
				r.ctx.ResetForISIN()
			}
			r.ctx.ISIN = resolved
			r.parseSchemeLine(line, i)
			r.captureRegistrar(i)
			return
		}
	}

	log.WithFields(log.Fields{"partial": partial, "scheme": scheme}).
		Warn("identifier unresolvable, records will be quarantined")
	if scheme != "" {
		r.ctx.SchemeName = scheme
	}
	r.ctx.ISIN = domain.UnknownISINPrefix + partial
	r.parseSchemeLine(line, i)
}

// lookAheadForISIN searches forward for a full identifier extending the
// partial prefix. A different full identifier or a scheme boundary stops
// the search: past either point any match belongs to the next scheme.
func (r *run) lookAheadForISIN(partial string, i int) string {
	fullRe, err := regexp.Compile(`\b(` + regexp.QuoteMeta(partial) + `[A-Z0-9]{` + fmt.Sprint(12-len(partial)) + `})\b`)
	if err != nil {
		return ""
	}

	for ahead := 1; ahead <= isinLookahead && i+ahead < len(r.lines); ahead++ {
		future := strings.TrimSpace(r.lines[i+ahead])
		if m := fullRe.FindStringSubmatch(future); m != nil {
			log.WithFields(log.Fields{"isin": m[1], "line": i + ahead}).
				Debug("found full identifier ahead of truncated one")
			return m[1]
		}
		if anyISINRe.MatchString(future) {
			break
		}
		if strings.Contains(future, "Closing Unit Balance") || strings.Contains(future, "Folio No") {
			break
		}
	}
	return ""
}

// captureRegistrar checks the line after a scheme line for a registrar marker.
func (r *run) captureRegistrar(i int) {
	if i+1 >= len(r.lines) {
		return
	}
	if m := registrarRe.FindStringSubmatch(r.lines[i+1]); m != nil {
		r.ctx.Registrar = m[1]
	}
}

// schemeTextBeforeMarker extracts the text preceding the identifier
// marker, stripping any scheme-code prefix.
func schemeTextBeforeMarker(line string) string {
	pos := strings.Index(line, "ISIN")
	if pos <= 0 {
		return ""
	}
	scheme := strings.TrimSpace(line[:pos])
	if m := codePrefixRe.FindStringSubmatch(scheme); m != nil {
		scheme = strings.TrimSpace(m[2])
	}
	scheme = strings.Join(strings.Fields(scheme), " ")
	return strings.TrimRight(scheme, " -")
}

var (
	lookbackStopRe = regexp.MustCompile(`(?i)Closing\s*Unit\s*Balance|Market\s*Value|ISIN\s*:\s*INF|\bINF[A-Z0-9]{9}\b`)
	lookbackSkipRe = regexp.MustCompile(`(?i)^\s*Folio\s*No|^\s*PAN\s*:|^\s*KYC\s*:|^\s*Registrar|^\s*\d{2}-\w{3}-\d{4}|Mutual\s*Fund$|^\s*Advisor\s*:`)
	embeddedISINRe = regexp.MustCompile(`ISIN\s*:\s*INF[A-Z0-9]{9}`)
	embeddedRegRe  = regexp.MustCompile(`(?i)Registrar\s*:\s*\w+`)
	titleCaseRe    = regexp.MustCompile(`[A-Z].*[a-z]`)
	allDigitsRe    = regexp.MustCompile(`^\d+$`)
)

var schemeKeywords = []string{
	"plan", "growth", "dividend", "direct", "regular", "fund", "option", "index", "etf",
}

// parseSchemeLine extracts the scheme name for the current identifier.
// Some layouts put the name on the line before the marker, so an empty
// extraction triggers a bounded backward search that must not cross into
// the previous scheme's block.
func (r *run) parseSchemeLine(line string, i int) {
	scheme := schemeTextBeforeMarker(line)

	if scheme == "" {
		for back := 1; back <= schemeLookback && i-back >= 0; back++ {
			prev := strings.TrimSpace(r.lines[i-back])
			if prev == "" {
				continue
			}
			if lookbackStopRe.MatchString(prev) {
				break
			}
			if lookbackSkipRe.MatchString(prev) {
				continue
			}

			candidate := embeddedISINRe.ReplaceAllString(prev, "")
			candidate = embeddedRegRe.ReplaceAllString(candidate, "")
			candidate = strings.TrimSpace(candidate)
			if len(candidate) < 10 || allDigitsRe.MatchString(candidate) {
				continue
			}

			lower := strings.ToLower(candidate)
			hasKeyword := false
			for _, kw := range schemeKeywords {
				if strings.Contains(lower, kw) {
					hasKeyword = true
					break
				}
			}
			if !hasKeyword && !titleCaseRe.MatchString(candidate) {
				continue
			}

			if left, right, ok := strings.Cut(candidate, "-"); ok {
				if len(left) <= 10 && left == strings.ToUpper(left) {
					candidate = strings.TrimSpace(right)
				}
			}
			scheme = strings.TrimRight(strings.Join(strings.Fields(candidate), " "), " -")
			break
		}
	}

	if scheme != "" {
		r.ctx.SchemeName = scheme
		log.WithFields(log.Fields{"scheme": scheme, "isin": r.ctx.ISIN}).Debug("scheme context updated")
	} else {
		log.WithFields(log.Fields{"isin": r.ctx.ISIN, "folio": r.ctx.Folio}).
			Warn("identifier found without scheme name")
	}
}

// parseTransactionLine parses a dated line into a Transaction, or nil if
// the line is not transaction-shaped.
func (r *run) parseTransactionLine(line string) *domain.Transaction {
	m := dateRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	txDate, err := time.Parse(dateLayout, m[1])
	if err != nil {
		return nil
	}
	rest := strings.TrimSpace(line[len(m[0]):])

	if strings.Contains(rest, "***") {
		return r.parseChargeEntry(txDate, rest)
	}

	parts := strings.Fields(rest)
	if len(parts) < 4 {
		return nil
	}

	// Numeric tokens require a decimal point: bare integers are reference
	// numbers, not financial values.
	var descParts []string
	var numbers []decimal.Decimal
	for _, part := range parts {
		if v, ok := parseNumericToken(part); ok {
			numbers = append(numbers, v)
		} else {
			descParts = append(descParts, part)
		}
	}
	if len(numbers) < 3 {
		return nil
	}
	description := strings.Join(descParts, " ")

	amount := numbers[0]
	units := numbers[1]
	nav := numbers[2]
	balance := decimal.Zero
	if len(numbers) > 3 {
		balance = numbers[3]
	}

	repairedAmount, repairedUnits, repairedNAV := crossval.Repair(&amount, &units, &nav)
	units = *repairedUnits

	txType := r.p.engine.Classify(description, units)
	tx, err := domain.NewTransaction(txDate, description, txType, units, balance,
		r.ctx.Folio, r.ctx.SchemeName, r.ctx.ISIN)
	if err != nil {
		log.WithError(err).Warn("dropping malformed transaction line")
		return nil
	}
	tx.Amount = repairedAmount
	tx.NAV = repairedNAV
	return tx
}

// parseChargeEntry handles bracketed charge lines of the shape
// "*** Stamp Duty *** 0.50": a description and an amount, no unit movement.
func (r *run) parseChargeEntry(txDate time.Time, rest string) *domain.Transaction {
	m := chargeRe.FindStringSubmatch(rest)
	if m == nil {
		return nil
	}
	description := strings.TrimSpace(m[1])
	amount := decimal.Zero
	if m[2] != "" {
		if v, err := parseDecimal(m[2]); err == nil {
			amount = v
		}
	}

	txType := domain.TypeCharges
	if res, ok := r.p.engine.Match(description); ok && domain.ChargeType(res.Type) {
		txType = res.Type
	}

	tx, err := domain.NewTransaction(txDate, description, txType, decimal.Zero, decimal.Zero,
		r.ctx.Folio, r.ctx.SchemeName, r.ctx.ISIN)
	if err != nil {
		return nil
	}
	tx.Amount = &amount
	return tx
}

// parseClosingLine turns a closing-balance match into a Holding.
func (r *run) parseClosingLine(m []string) (domain.Holding, error) {
	units, err := parseDecimal(m[1])
	if err != nil {
		return domain.Holding{}, fmt.Errorf("bad unit balance %q: %w", m[1], err)
	}
	navDate, err := time.Parse(dateLayout, m[2])
	if err != nil {
		return domain.Holding{}, fmt.Errorf("bad nav date %q: %w", m[2], err)
	}
	nav, err := parseDecimal(m[3])
	if err != nil {
		return domain.Holding{}, fmt.Errorf("bad nav %q: %w", m[3], err)
	}
	marketValue, err := parseDecimal(m[5])
	if err != nil {
		return domain.Holding{}, fmt.Errorf("bad market value %q: %w", m[5], err)
	}

	h := domain.NewHolding(r.ctx.SchemeName, r.ctx.ISIN, r.ctx.Folio, units, nav, navDate, marketValue)
	h.Registrar = r.ctx.Registrar
	h.AMC = r.ctx.AMC
	return h, nil
}

func (r *run) quarantineHolding(h domain.Holding) {
	log.WithFields(log.Fields{"scheme": h.SchemeName, "folio": h.Folio, "partial": h.ISIN}).
		Info("quarantined holding")
	r.quarantine = append(r.quarantine, domain.QuarantineItem{
		ID:          uuid.NewString(),
		PartialISIN: domain.PartialISIN(h.ISIN),
		SchemeName:  h.SchemeName,
		AMC:         r.ctx.AMC,
		Folio:       h.Folio,
		DataType:    domain.QuarantineHolding,
		Raw:         domain.RawHolding(h),
	})
}

func (r *run) quarantineTransaction(tx domain.Transaction) {
	log.WithFields(log.Fields{"scheme": tx.SchemeName, "folio": tx.Folio, "partial": tx.ISIN}).
		Info("quarantined transaction")
	r.quarantine = append(r.quarantine, domain.QuarantineItem{
		ID:          uuid.NewString(),
		PartialISIN: domain.PartialISIN(tx.ISIN),
		SchemeName:  tx.SchemeName,
		AMC:         r.ctx.AMC,
		Folio:       tx.Folio,
		DataType:    domain.QuarantineTransaction,
		Raw:         domain.RawTransaction(tx),
	})
}

// parseNumericToken parses a token as a financial value. Commas are
// thousands separators; parentheses mark negatives. Tokens without a
// decimal point are rejected.
func parseNumericToken(token string) (decimal.Decimal, bool) {
	clean := strings.ReplaceAll(token, ",", "")
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = "-" + clean[1:len(clean)-1]
	}
	if !strings.Contains(clean, ".") {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

func parseDecimal(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = "-" + clean[1:len(clean)-1]
	}
	return decimal.NewFromString(clean)
}
