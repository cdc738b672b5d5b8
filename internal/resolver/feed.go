package resolver

import (
	"strings"
	"unicode"

	"github.com/rumor-ml/casparse/internal/domain"
)

// DefaultFeedURL is the public NAV feed carrying scheme codes, ISINs,
// names and daily NAVs for every listed mutual-fund scheme.
const DefaultFeedURL = "https://www.amfiindia.com/spages/NAVAll.txt"

// parseFeed parses the semicolon-delimited reference feed.
//
// Data lines have the shape:
//
//	Scheme Code;ISIN Div Payout/ISIN Growth;ISIN Div Reinvestment;Scheme Name;Net Asset Value;Date
//
// Lines without semicolons that don't start with a digit are fund-house
// headers; they set the AMC attributed to the data lines that follow.
// When a row carries both ISIN variants the growth one wins.
func parseFeed(text string) map[string]SchemeInfo {
	schemes := make(map[string]SchemeInfo)
	currentAMC := ""

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.Contains(line, ";") {
			if !unicode.IsDigit(rune(line[0])) {
				currentAMC = line
			}
			continue
		}

		parts := strings.Split(line, ";")
		if len(parts) < 4 {
			continue
		}

		code := strings.TrimSpace(parts[0])
		isinPayout := strings.TrimSpace(parts[1])
		isinGrowth := strings.TrimSpace(parts[2])
		name := strings.TrimSpace(parts[3])
		nav := ""
		if len(parts) > 4 {
			nav = strings.TrimSpace(parts[4])
		}

		isin := isinPayout
		if strings.HasPrefix(isinGrowth, "INF") {
			isin = isinGrowth
		}
		if !strings.HasPrefix(isin, "INF") || !domain.ValidISIN(isin) {
			continue
		}

		schemes[isin] = SchemeInfo{
			Code: code,
			Name: name,
			AMC:  currentAMC,
			NAV:  nav,
		}
	}

	return schemes
}
