// Package pipeline orchestrates the full parse of a statement's text lines:
// the unified scheme-interleaved parser first, falling back to section
// detection with the dedicated holdings and transaction parsers when the
// document is not interleaved. Either way the result is validated and
// returned best-effort; a content problem never aborts the parse.
package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rumor-ml/casparse/internal/domain"
	"github.com/rumor-ml/casparse/internal/holdings"
	"github.com/rumor-ml/casparse/internal/resolver"
	"github.com/rumor-ml/casparse/internal/rules"
	"github.com/rumor-ml/casparse/internal/sections"
	"github.com/rumor-ml/casparse/internal/transactions"
	"github.com/rumor-ml/casparse/internal/unified"
	"github.com/rumor-ml/casparse/internal/validate"
)

var (
	panRe    = regexp.MustCompile(`\b([A-Z]{5}[0-9]{4}[A-Z])\b`)
	emailRe  = regexp.MustCompile(`\b([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})\b`)
	mobileRe = regexp.MustCompile(`\b(\+91[\s-]?)?([6-9]\d{9})\b`)

	nameRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:name|investor)\s*:?\s*(.+?)(?:\s*(?:PAN|email|mobile|address)|$)`),
		regexp.MustCompile(`(?i)^(?:mr\.?|ms\.?|mrs\.?|dr\.?|shri\.?|smt\.?)\s*(.+)`),
	}
	nameRejectRe = regexp.MustCompile(`(?i)(statement|consolidated|cas|period)`)
	nameTailRe   = regexp.MustCompile(`[,;].*$`)

	stmtDateRe = regexp.MustCompile(
		`(?i)(?:statement\s+(?:for|as\s+on|period).*?)(\d{2}-(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)-\d{4})`)

	dpIDRe     = regexp.MustCompile(`(?i)DP\s*ID\s*:?\s*([A-Z0-9]+)`)
	clientIDRe = regexp.MustCompile(`(?i)(?:Client|BO)\s*ID\s*:?\s*([A-Z0-9]+)`)
)

// headerLines bounds the statement-date and fallback investor searches.
const headerLines = 50

// Pipeline runs the complete line-level parse.
type Pipeline struct {
	unified   *unified.Parser
	engine    *rules.Engine
	validator *validate.Validator
}

// New builds a pipeline around the given resolver, loading the embedded
// classification rules.
func New(res *resolver.Resolver) (*Pipeline, error) {
	engine, err := rules.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("loading classification rules: %w", err)
	}
	return &Pipeline{
		unified:   unified.New(res, engine),
		engine:    engine,
		validator: validate.New(),
	}, nil
}

// Parse turns extracted statement lines into a validated Statement.
// The unified parser handles the common interleaved layout; when it finds
// no holdings and no transactions, the section-based fallback runs instead.
func (p *Pipeline) Parse(lines []string, sourceFile string) *domain.Statement {
	log.WithFields(log.Fields{"lines": len(lines), "source": sourceFile}).
		Info("starting statement parse")

	stmtDate := extractStatementDate(head(lines, 30))

	result := p.unified.Parse(lines)
	var st *domain.Statement

	if len(result.Holdings) > 0 || len(result.Transactions) > 0 {
		log.WithFields(log.Fields{
			"holdings":     len(result.Holdings),
			"transactions": len(result.Transactions),
		}).Info("unified parser produced data")

		st = domain.NewStatement(result.Investor)
		st.Holdings = result.Holdings
		st.Transactions = result.Transactions
		if stmtDate.IsZero() {
			stmtDate = result.StatementDate
		}
	} else {
		log.Info("falling back to section-based parsing")
		st = p.parseSectioned(lines, stmtDate)
		if st.Investor.Name == "" && st.Investor.PAN == "" {
			st.Investor = result.Investor
		}
	}

	// Quarantine items from the unified pass survive on both branches.
	st.Quarantine = result.Quarantine
	if len(st.Quarantine) > 0 {
		log.WithField("items", len(st.Quarantine)).
			Warn("quarantined records with broken identifiers")
	}

	st.StatementDate = stmtDate
	st.SourceFile = sourceFile
	st.Validation = p.validator.Validate(st)

	log.WithFields(log.Fields{
		"holdings":     len(st.Holdings),
		"transactions": len(st.Transactions),
		"quarantined":  len(st.Quarantine),
		"valid":        st.Validation.IsValid,
	}).Info("statement parse complete")

	return st
}

func (p *Pipeline) parseSectioned(lines []string, stmtDate time.Time) *domain.Statement {
	secs := sections.Detect(lines)
	log.WithField("sections", len(secs)).Debug("detected document sections")

	investorLines := head(lines, headerLines)
	if sec := sections.ByType(secs, sections.StateInvestor); sec != nil {
		investorLines = sec.Lines
	}
	st := domain.NewStatement(parseInvestor(investorLines))

	for _, sec := range sections.AllByType(secs, sections.StateHoldings) {
		st.Holdings = append(st.Holdings, holdings.Parse(sec.Lines, stmtDate)...)
	}
	for _, sec := range sections.AllByType(secs, sections.StateTransaction) {
		st.Transactions = append(st.Transactions, transactions.Parse(sec.Lines, p.engine)...)
	}

	return st
}

// parseInvestor extracts identity fields from the investor section. Name
// extraction prefers labeled forms, keeping the longest plausible
// candidate, and falls back to the first line that is not obviously
// something else.
func parseInvestor(lines []string) domain.Investor {
	text := strings.Join(lines, " ")

	pan := ""
	if m := panRe.FindStringSubmatch(text); m != nil {
		pan = m[1]
	}

	name := ""
	for _, re := range nameRes {
		for _, line := range lines {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			candidate := strings.Join(strings.Fields(m[1]), " ")
			candidate = nameTailRe.ReplaceAllString(candidate, "")
			if len(candidate) > len(name) && len(candidate) < 100 {
				name = candidate
			}
		}
	}
	if name == "" {
		for _, line := range lines {
			cleaned := strings.TrimSpace(line)
			if cleaned != "" && len(cleaned) > 3 && len(cleaned) < 60 &&
				!panRe.MatchString(cleaned) &&
				!emailRe.MatchString(cleaned) &&
				!nameRejectRe.MatchString(cleaned) {
				name = cleaned
				break
			}
		}
	}

	inv := domain.NewInvestor(name, pan)
	if m := emailRe.FindStringSubmatch(text); m != nil {
		inv.Email = m[1]
	}
	if m := mobileRe.FindStringSubmatch(text); m != nil {
		inv.Mobile = m[2]
	}
	if m := dpIDRe.FindStringSubmatch(text); m != nil {
		inv.DPID = m[1]
	}
	if m := clientIDRe.FindStringSubmatch(text); m != nil {
		inv.ClientID = m[1]
	}
	return inv
}

func extractStatementDate(lines []string) time.Time {
	text := strings.Join(lines, " ")
	if m := stmtDateRe.FindStringSubmatch(text); m != nil {
		if d, err := time.Parse("02-Jan-2006", m[1]); err == nil {
			return d
		}
	}
	return time.Time{}
}

func head(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
