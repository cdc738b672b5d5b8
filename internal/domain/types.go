// Package domain defines the canonical record types produced by CAS parsing.
package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType categorizes a statement transaction.
// Use ValidateTransactionType to ensure validity before use.
type TransactionType string

const (
	TypePurchase             TransactionType = "purchase"
	TypeRedemption           TransactionType = "redemption"
	TypeSIP                  TransactionType = "sip"
	TypeSTPIn                TransactionType = "stp_in"
	TypeSTPOut               TransactionType = "stp_out"
	TypeSwitchIn             TransactionType = "switch_in"
	TypeSwitchOut            TransactionType = "switch_out"
	TypeDividendPayout       TransactionType = "dividend_payout"
	TypeDividendReinvestment TransactionType = "dividend_reinvestment"
	TypeSTT                  TransactionType = "stt"
	TypeStampDuty            TransactionType = "stamp_duty"
	TypeCharges              TransactionType = "charges"
	TypeSegregatedPortfolio  TransactionType = "segregated_portfolio"
	TypeBonus                TransactionType = "bonus"
	TypeTransferIn           TransactionType = "transfer_in"
	TypeTransferOut          TransactionType = "transfer_out"
	TypeUnknown              TransactionType = "unknown"
)

var validTransactionTypes = map[TransactionType]struct{}{
	TypePurchase: {}, TypeRedemption: {}, TypeSIP: {},
	TypeSTPIn: {}, TypeSTPOut: {}, TypeSwitchIn: {}, TypeSwitchOut: {},
	TypeDividendPayout: {}, TypeDividendReinvestment: {},
	TypeSTT: {}, TypeStampDuty: {}, TypeCharges: {},
	TypeSegregatedPortfolio: {}, TypeBonus: {},
	TypeTransferIn: {}, TypeTransferOut: {}, TypeUnknown: {},
}

// ValidateTransactionType checks if the transaction type is one of the known variants.
func ValidateTransactionType(t TransactionType) bool {
	_, ok := validTransactionTypes[t]
	return ok
}

// OutflowType reports whether the type is expected to carry negative units.
func OutflowType(t TransactionType) bool {
	switch t {
	case TypeRedemption, TypeSwitchOut, TypeSTPOut, TypeTransferOut:
		return true
	}
	return false
}

// InflowType reports whether the type is expected to carry positive units.
func InflowType(t TransactionType) bool {
	switch t {
	case TypePurchase, TypeSIP, TypeSwitchIn, TypeSTPIn,
		TypeDividendReinvestment, TypeBonus, TypeTransferIn:
		return true
	}
	return false
}

// ChargeType reports whether the type is a charge entry (STT, stamp duty, load).
// Charge entries carry an amount but should not move unit balances.
func ChargeType(t TransactionType) bool {
	switch t {
	case TypeSTT, TypeStampDuty, TypeCharges:
		return true
	}
	return false
}

var (
	isinPattern = regexp.MustCompile(`^[A-Z]{3}[A-Z0-9]{9}$`)
	panPattern  = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

// ValidISIN reports whether s is a fully-formed 12-character ISIN
// (3-letter prefix followed by 9 alphanumerics, all uppercase).
func ValidISIN(s string) bool {
	return isinPattern.MatchString(s)
}

// ValidPAN reports whether s is a well-formed PAN (5 letters, 4 digits, 1 letter).
func ValidPAN(s string) bool {
	return panPattern.MatchString(s)
}

// UnknownISINPrefix marks an identifier that could not be resolved to a full
// ISIN. The partial value, if any, follows the prefix.
const UnknownISINPrefix = "UNKNOWN_"

// BrokenISIN reports whether an ISIN value should route its record to quarantine.
func BrokenISIN(isin string) bool {
	if isin == "" {
		return true
	}
	if strings.HasPrefix(isin, UnknownISINPrefix) {
		return true
	}
	return !ValidISIN(isin)
}

// PartialISIN strips the unresolved sentinel prefix, returning the raw
// partial identifier carried by a broken ISIN value.
func PartialISIN(isin string) string {
	return strings.TrimPrefix(isin, UnknownISINPrefix)
}

// Investor holds personal information extracted from the statement header.
type Investor struct {
	Name     string
	PAN      string
	Email    string
	Mobile   string
	Address  string
	DPID     string
	ClientID string
}

// NewInvestor creates a normalized investor record. The name's whitespace is
// collapsed, the PAN uppercased. Missing values are allowed; the validator
// reports on them later.
func NewInvestor(name, pan string) Investor {
	return Investor{
		Name: collapseSpaces(name),
		PAN:  strings.ToUpper(strings.TrimSpace(pan)),
	}
}

// SetEmail normalizes and sets the optional email address.
func (inv *Investor) SetEmail(email string) {
	inv.Email = strings.ToLower(strings.TrimSpace(email))
}

// Holding is a single mutual-fund position reported by the statement.
type Holding struct {
	SchemeName   string
	ISIN         string
	Folio        string
	Units        decimal.Decimal
	NAV          decimal.Decimal
	NAVDate      time.Time
	CurrentValue decimal.Decimal
	Registrar    string
	AMC          string
	IsSegregated bool
}

// NewHolding creates a normalized holding. Scheme name whitespace is
// collapsed, the ISIN uppercased, and the folio trimmed. Numeric invariants
// (units×NAV versus current value) are checked by the validator, not here.
func NewHolding(schemeName, isin, folio string, units, nav decimal.Decimal, navDate time.Time, currentValue decimal.Decimal) Holding {
	return Holding{
		SchemeName:   collapseSpaces(schemeName),
		ISIN:         strings.ToUpper(strings.TrimSpace(isin)),
		Folio:        strings.TrimSpace(folio),
		Units:        units,
		NAV:          nav,
		NAVDate:      navDate,
		CurrentValue: currentValue,
	}
}

// Transaction is one dated entry in a scheme's transaction history.
// Units are signed: positive for inflows, negative for outflows.
// Amount and NAV are nil when the statement does not report them
// (charge entries carry only an amount).
type Transaction struct {
	Date         time.Time
	Description  string
	Type         TransactionType
	Units        decimal.Decimal
	BalanceUnits decimal.Decimal
	Folio        string
	SchemeName   string
	ISIN         string
	Amount       *decimal.Decimal
	NAV          *decimal.Decimal
}

// NewTransaction creates a normalized transaction.
func NewTransaction(date time.Time, description string, txType TransactionType, units, balanceUnits decimal.Decimal, folio, schemeName, isin string) (*Transaction, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("transaction date cannot be zero")
	}
	if !ValidateTransactionType(txType) {
		return nil, fmt.Errorf("invalid transaction type: %s", txType)
	}
	return &Transaction{
		Date:         date,
		Description:  collapseSpaces(description),
		Type:         txType,
		Units:        units,
		BalanceUnits: balanceUnits,
		Folio:        strings.TrimSpace(folio),
		SchemeName:   collapseSpaces(schemeName),
		ISIN:         strings.ToUpper(strings.TrimSpace(isin)),
	}, nil
}

// ValidationResult accumulates errors and warnings from statement validation.
// Errors force IsValid to false; warnings are advisory.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// NewValidationResult creates an empty, valid result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}
}

// AddError records a critical error and marks the result invalid.
func (r *ValidationResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

// AddWarning records a non-critical issue.
func (r *ValidationResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge folds another result into this one. Validity is the AND of both.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.IsValid {
		r.IsValid = false
	}
}

// QuarantineDataType tags the kind of record held in quarantine.
type QuarantineDataType string

const (
	QuarantineHolding     QuarantineDataType = "holding"
	QuarantineTransaction QuarantineDataType = "transaction"
)

// QuarantineItem is a record whose ISIN could not be resolved. It is held
// out of the canonical lists pending manual reconciliation.
type QuarantineItem struct {
	ID          string             `json:"id"`
	PartialISIN string             `json:"partial_isin"`
	SchemeName  string             `json:"scheme_name"`
	AMC         string             `json:"amc"`
	Folio       string             `json:"folio_number"`
	DataType    QuarantineDataType `json:"data_type"`
	Raw         json.RawMessage    `json:"data"`
}

// Statement is the complete parsed CAS document. It owns all child records;
// children are never shared across statements.
type Statement struct {
	Investor      Investor
	Holdings      []Holding
	Transactions  []Transaction
	Quarantine    []QuarantineItem
	StatementDate time.Time
	Validation    *ValidationResult
	SourceFile    string
}

// NewStatement creates an empty statement for the given investor.
func NewStatement(investor Investor) *Statement {
	return &Statement{
		Investor:     investor,
		Holdings:     []Holding{},
		Transactions: []Transaction{},
		Quarantine:   []QuarantineItem{},
		Validation:   NewValidationResult(),
	}
}

// HoldingsForFolio returns all holdings under the given folio number.
func (s *Statement) HoldingsForFolio(folio string) []Holding {
	var out []Holding
	for _, h := range s.Holdings {
		if h.Folio == folio {
			out = append(out, h)
		}
	}
	return out
}

// TransactionsForISIN returns all transactions for the given ISIN.
func (s *Statement) TransactionsForISIN(isin string) []Transaction {
	var out []Transaction
	for _, t := range s.Transactions {
		if t.ISIN == isin {
			out = append(out, t)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
