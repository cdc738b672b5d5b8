package domain

import (
	"encoding/json"
	"time"
)

// Wire format for parsed statements. Dates serialize as YYYY-MM-DD and
// decimals as strings so unit quantities round-trip without float drift.

const dateLayout = "2006-01-02"

type investorJSON struct {
	Name     string `json:"name"`
	PAN      string `json:"pan"`
	Email    string `json:"email,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
	Address  string `json:"address,omitempty"`
	DPID     string `json:"dp_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

type holdingJSON struct {
	SchemeName   string          `json:"scheme_name"`
	ISIN         string          `json:"isin"`
	Folio        string          `json:"folio"`
	Units        json.RawMessage `json:"units"`
	NAV          json.RawMessage `json:"nav"`
	NAVDate      string          `json:"nav_date"`
	CurrentValue json.RawMessage `json:"current_value"`
	Registrar    string          `json:"registrar,omitempty"`
	AMC          string          `json:"amc,omitempty"`
	IsSegregated bool            `json:"is_segregated"`
}

type transactionJSON struct {
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	Type         TransactionType `json:"type"`
	Amount       json.RawMessage `json:"amount"`
	Units        json.RawMessage `json:"units"`
	NAV          json.RawMessage `json:"nav"`
	BalanceUnits json.RawMessage `json:"balance_units"`
	Folio        string          `json:"folio"`
	SchemeName   string          `json:"scheme_name"`
	ISIN         string          `json:"isin"`
}

type validationJSON struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type statementJSON struct {
	Investor      investorJSON      `json:"investor"`
	StatementDate *string           `json:"statement_date"`
	Holdings      []holdingJSON     `json:"holdings"`
	Transactions  []transactionJSON `json:"transactions"`
	Validation    validationJSON    `json:"validation"`
	Quarantine    []QuarantineItem  `json:"quarantine"`
	SourceFile    string            `json:"source_file,omitempty"`
}

// MarshalJSON implements the statement wire contract.
func (s *Statement) MarshalJSON() ([]byte, error) {
	out := statementJSON{
		Investor: investorJSON{
			Name:     s.Investor.Name,
			PAN:      s.Investor.PAN,
			Email:    s.Investor.Email,
			Mobile:   s.Investor.Mobile,
			Address:  s.Investor.Address,
			DPID:     s.Investor.DPID,
			ClientID: s.Investor.ClientID,
		},
		Holdings:     make([]holdingJSON, 0, len(s.Holdings)),
		Transactions: make([]transactionJSON, 0, len(s.Transactions)),
		Validation:   validationJSON{IsValid: true, Errors: []string{}, Warnings: []string{}},
		Quarantine:   s.Quarantine,
		SourceFile:   s.SourceFile,
	}
	if out.Quarantine == nil {
		out.Quarantine = []QuarantineItem{}
	}
	if !s.StatementDate.IsZero() {
		d := s.StatementDate.Format(dateLayout)
		out.StatementDate = &d
	}
	if s.Validation != nil {
		out.Validation = validationJSON{
			IsValid:  s.Validation.IsValid,
			Errors:   s.Validation.Errors,
			Warnings: s.Validation.Warnings,
		}
	}

	for _, h := range s.Holdings {
		out.Holdings = append(out.Holdings, holdingJSON{
			SchemeName:   h.SchemeName,
			ISIN:         h.ISIN,
			Folio:        h.Folio,
			Units:        mustDecimalJSON(h.Units.String()),
			NAV:          mustDecimalJSON(h.NAV.String()),
			NAVDate:      h.NAVDate.Format(dateLayout),
			CurrentValue: mustDecimalJSON(h.CurrentValue.String()),
			Registrar:    h.Registrar,
			AMC:          h.AMC,
			IsSegregated: h.IsSegregated,
		})
	}

	for _, t := range s.Transactions {
		tj := transactionJSON{
			Date:         t.Date.Format(dateLayout),
			Description:  t.Description,
			Type:         t.Type,
			Units:        mustDecimalJSON(t.Units.String()),
			BalanceUnits: mustDecimalJSON(t.BalanceUnits.String()),
			Folio:        t.Folio,
			SchemeName:   t.SchemeName,
			ISIN:         t.ISIN,
			Amount:       nullJSON,
			NAV:          nullJSON,
		}
		if t.Amount != nil {
			tj.Amount = mustDecimalJSON(t.Amount.String())
		}
		if t.NAV != nil {
			tj.NAV = mustDecimalJSON(t.NAV.String())
		}
		out.Transactions = append(out.Transactions, tj)
	}

	return json.Marshal(out)
}

var nullJSON = json.RawMessage("null")

func mustDecimalJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// RawHolding captures a holding as a quarantine payload.
func RawHolding(h Holding) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"scheme_name":   h.SchemeName,
		"isin":          h.ISIN,
		"folio":         h.Folio,
		"units":         h.Units.String(),
		"nav":           h.NAV.String(),
		"nav_date":      h.NAVDate.Format(dateLayout),
		"current_value": h.CurrentValue.String(),
		"registrar":     h.Registrar,
	})
	return b
}

// RawTransaction captures a transaction as a quarantine payload.
func RawTransaction(t Transaction) json.RawMessage {
	m := map[string]any{
		"scheme_name":   t.SchemeName,
		"isin":          t.ISIN,
		"folio":         t.Folio,
		"date":          t.Date.Format(dateLayout),
		"description":   t.Description,
		"type":          string(t.Type),
		"units":         t.Units.String(),
		"balance_units": t.BalanceUnits.String(),
	}
	if t.Amount != nil {
		m["amount"] = t.Amount.String()
	}
	if t.NAV != nil {
		m["nav"] = t.NAV.String()
	}
	b, _ := json.Marshal(m)
	return b
}

// ParseStatementDate parses the statement's DD-Mon-YYYY date notation.
func ParseStatementDate(s string) (time.Time, error) {
	return time.Parse("02-Jan-2006", s)
}
