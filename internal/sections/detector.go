// Package sections detects the logical sections of a consolidated account
// statement using a small state machine driven by semantic markers, so
// parsing survives format drift between statement versions.
package sections

import (
	"regexp"

	log "github.com/sirupsen/logrus"
)

// State identifies the section detector's position in the document.
type State string

const (
	StateInitial     State = "initial"
	StateInvestor    State = "investor_info"
	StateHoldings    State = "holdings_summary"
	StateTransaction State = "transaction_details"
	StateEnd         State = "end"
)

// Section is a contiguous run of lines belonging to one document section.
// EndLine is exclusive.
type Section struct {
	Type      State
	StartLine int
	EndLine   int
	Lines     []string
}

var (
	investorMarkers = compileAll(
		`(?i)personal\s*information`,
		`(?i)investor\s*details`,
		`(?i)account\s*holder\s*details`,
		`(?i)statement\s*for\s*the\s*period`,
		`(?i)consolidated\s*account\s*statement`,
	)

	holdingsMarkers = compileAll(
		`(?i)mutual\s*fund.*summary`,
		`(?i)summary\s*of\s*mutual\s*fund`,
		`(?i)scheme\s*name.*ISIN`,
		`(?i)ISIN.*NAV`,
		`(?i)folio\s*no.*units.*nav`,
		`(?i)market\s*value\s*of.*holdings`,
		`(?i)portfolio\s*summary`,
		`(?i)folio\s*no\s*:`,
	)

	transactionMarkers = compileAll(
		`(?i)transaction\s*statement`,
		`(?i)statement\s*of\s*transactions`,
		`(?i)transaction\s*details`,
		`(?i)details\s*of\s*transactions`,
		`(?i)transaction\s*history`,
	)

	endMarkers = compileAll(
		`(?i)this\s*is\s*a\s*computer\s*generated`,
		`(?i)statement\s*generated\s*on`,
		`(?i)end\s*of\s*statement`,
		`(?i)^\s*page\s*\d+\s*of\s*\d+\s*$`,
	)

	panRe   = regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`)
	isinRe  = regexp.MustCompile(`\bINF[A-Z0-9]{9}\b`)
	dateRe  = regexp.MustCompile(`\b\d{2}-(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)-\d{4}\b`)
	navRe   = regexp.MustCompile(`(?i)nav\s*:?\s*[\d,]+\.\d+`)
	valueRe = regexp.MustCompile(`\d+\.\d{2,4}`)

	newHoldingsRe = compileAll(
		`(?i)summary\s*of\s*holdings`,
		`(?i)mutual\s*fund\s*summary`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchesAny(line string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// Detector walks statement lines and emits section boundaries.
type Detector struct {
	state State
}

// NewDetector creates a detector in the initial state.
func NewDetector() *Detector {
	return &Detector{state: StateInitial}
}

// Detect splits the lines into sections. A state change closes the current
// section and opens the next; end markers close without opening. The final
// open section is closed at the last line.
func (d *Detector) Detect(lines []string) []Section {
	d.state = StateInitial
	var sections []Section
	start := -1
	var openType State

	log.WithField("lines", len(lines)).Debug("detecting statement sections")

	for i, line := range lines {
		next := d.transition(line, i, lines)
		if next == d.state {
			continue
		}

		if start >= 0 {
			sections = append(sections, Section{
				Type:      openType,
				StartLine: start,
				EndLine:   i,
				Lines:     lines[start:i],
			})
		}

		if next != StateEnd {
			start = i
			openType = next
		} else {
			start = -1
		}
		d.state = next
	}

	if start >= 0 {
		sections = append(sections, Section{
			Type:      openType,
			StartLine: start,
			EndLine:   len(lines),
			Lines:     lines[start:],
		})
	}

	log.WithField("sections", len(sections)).Debug("section detection complete")
	return sections
}

func (d *Detector) transition(line string, i int, lines []string) State {
	// End markers preempt everything.
	if matchesAny(line, endMarkers) {
		return StateEnd
	}

	switch d.state {
	case StateInitial:
		if matchesAny(line, investorMarkers) || panRe.MatchString(line) {
			return StateInvestor
		}
		// Some formats skip the explicit investor header.
		if matchesAny(line, holdingsMarkers) {
			return StateHoldings
		}

	case StateInvestor:
		if matchesAny(line, holdingsMarkers) {
			return StateHoldings
		}
		if isinRe.MatchString(line) && hasNearbyNAV(i, lines) {
			return StateHoldings
		}
		if matchesAny(line, transactionMarkers) {
			return StateTransaction
		}

	case StateHoldings:
		if matchesAny(line, transactionMarkers) {
			return StateTransaction
		}
		if dateRe.MatchString(line) && valueRe.MatchString(line) {
			return StateTransaction
		}

	case StateTransaction:
		// Multi-fund statements can open a fresh holdings block, but only
		// an explicit header counts; folio markers also occur inside
		// transaction history.
		if matchesAny(line, newHoldingsRe) {
			return StateHoldings
		}
	}

	return d.state
}

func hasNearbyNAV(i int, lines []string) bool {
	const window = 3
	start := max(0, i-window)
	end := min(len(lines), i+window+1)
	for j := start; j < end; j++ {
		if navRe.MatchString(lines[j]) {
			return true
		}
	}
	return false
}

// Detect runs a fresh detector over the lines.
func Detect(lines []string) []Section {
	return NewDetector().Detect(lines)
}

// ByType returns the first section of the given type, or nil.
func ByType(sections []Section, t State) *Section {
	for i := range sections {
		if sections[i].Type == t {
			return &sections[i]
		}
	}
	return nil
}

// AllByType returns every section of the given type, in document order.
func AllByType(sections []Section, t State) []Section {
	var out []Section
	for _, s := range sections {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}
