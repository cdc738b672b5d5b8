package unified

import (
	"regexp"
	"strings"
	"time"

	"github.com/rumor-ml/casparse/internal/domain"
)

var (
	allCapsNameRe = regexp.MustCompile(`\b([A-Z]{2,}(?:\s+[A-Z]{2,})+)\b`)
	digitRunRe    = regexp.MustCompile(`\d{3,}`)
	lettersOnlyRe = regexp.MustCompile(`^[A-Za-z\s]+$`)
)

// Header fragments that look like all-caps names but never are.
var nameSkipFragments = []string{
	"PORTFOLIO SUMMARY", "MUTUAL FUND", "CONSOLIDATED ACCOUNT",
	"COST VALUE", "MARKET VALUE", "PAN", "KYC", "ISIN", "NAV",
	"DIRECT PLAN", "GROWTH", "INR", "STT", "SIP", "DEMAT",
}

// Address vocabulary: lines containing these are location lines, not names.
var addressWords = []string{
	"west bengal", "india", "maharashtra", "karnataka", "delhi",
	"tamil nadu", "gujarat", "kerala", "road", "street", "lane",
	"nagar", "colony", "sector", "block", "floor", "flat",
	"cost value", "market value", "portfolio", "summary",
}

// parseInvestor extracts investor details and the statement date from the
// document header. Statements carry no labeled name field, so the name is
// recovered heuristically: an all-caps multi-word token first, then a
// plausible free-text line after the email line.
func parseInvestor(lines []string) (domain.Investor, time.Time) {
	text := strings.Join(lines, " ")

	var inv domain.Investor
	if m := panRe.FindStringSubmatch(text); m != nil {
		inv.PAN = m[1]
	}
	if m := emailRe.FindStringSubmatch(text); m != nil {
		inv.SetEmail(m[1])
	}
	if m := mobileRe.FindStringSubmatch(text); m != nil {
		inv.Mobile = m[1]
	}

	var stmtDate time.Time
	if m := periodRe.FindStringSubmatch(text); m != nil {
		if d, err := time.Parse(dateLayout, m[2]); err == nil {
			stmtDate = d
		}
	}

	if m := allCapsNameRe.FindStringSubmatch(text); m != nil {
		candidate := m[1]
		skip := false
		for _, frag := range nameSkipFragments {
			if strings.Contains(candidate, frag) {
				skip = true
				break
			}
		}
		if !skip && len(candidate) >= 5 && len(candidate) <= 50 {
			inv.Name = candidate
		}
	}

	if inv.Name == "" {
		inv.Name = nameAfterEmailLine(lines)
	}
	return inv, stmtDate
}

func nameAfterEmailLine(lines []string) string {
	foundEmail := false
	for _, line := range lines {
		clean := strings.TrimSpace(line)
		lower := strings.ToLower(clean)

		if strings.Contains(lower, "email") {
			foundEmail = true
			continue
		}
		if !foundEmail {
			continue
		}

		if strings.Contains(lower, "consolidated") || strings.Contains(lower, "statement") ||
			strings.Contains(lower, "portfolio") || strings.Contains(lower, "mutual fund") ||
			strings.Contains(lower, "investor") {
			continue
		}
		if periodRe.MatchString(clean) || digitRunRe.MatchString(clean) || strings.Contains(clean, "@") {
			continue
		}
		skip := false
		for _, w := range addressWords {
			if strings.Contains(lower, w) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if len(clean) > 3 && len(clean) < 50 && lettersOnlyRe.MatchString(clean) {
			return clean
		}
	}
	return ""
}
