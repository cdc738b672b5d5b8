// Package quarantine persists records whose scheme identifier could not be
// resolved during parsing. Items wait in a pending state until an operator
// supplies the correct identifier; resolving installs a manual override so
// future parses recognize the scheme directly.
package quarantine

import (
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/rumor-ml/casparse/internal/domain"
	"github.com/rumor-ml/casparse/internal/resolver"
)

const schema = `
CREATE TABLE IF NOT EXISTS quarantine (
	id TEXT PRIMARY KEY,
	partial_isin TEXT NOT NULL,
	scheme_name TEXT NOT NULL,
	amc TEXT NOT NULL DEFAULT '',
	folio_number TEXT NOT NULL DEFAULT '',
	data_type TEXT NOT NULL,
	data_json TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	resolved_isin TEXT,
	resolved_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_quarantine_status ON quarantine(status);
CREATE INDEX IF NOT EXISTS idx_quarantine_partial ON quarantine(partial_isin);
`

// overridePatternLen caps the scheme-name fragment stored as a manual
// override pattern when resolving.
const overridePatternLen = 50

// Store is a sqlite-backed quarantine inventory.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the quarantine database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening quarantine db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing quarantine schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts one quarantined item in the pending state.
func (s *Store) Add(item domain.QuarantineItem) error {
	_, err := s.db.Exec(`
		INSERT INTO quarantine (id, partial_isin, scheme_name, amc, folio_number, data_type, data_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.PartialISIN, item.SchemeName, item.AMC, item.Folio,
		string(item.DataType), string(item.Raw))
	if err != nil {
		return fmt.Errorf("inserting quarantine item: %w", err)
	}
	return nil
}

// AddAll inserts a batch of items in one transaction.
func (s *Store) AddAll(items []domain.QuarantineItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning quarantine batch: %w", err)
	}
	for _, item := range items {
		if _, err := tx.Exec(`
			INSERT INTO quarantine (id, partial_isin, scheme_name, amc, folio_number, data_type, data_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.PartialISIN, item.SchemeName, item.AMC, item.Folio,
			string(item.DataType), string(item.Raw)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting quarantine item %s: %w", item.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing quarantine batch: %w", err)
	}
	log.WithField("items", len(items)).Info("quarantined unresolved records")
	return nil
}

// Pending returns all unresolved items, newest first.
func (s *Store) Pending() ([]domain.QuarantineItem, error) {
	rows, err := s.db.Query(`
		SELECT id, partial_isin, scheme_name, amc, folio_number, data_type, data_json
		FROM quarantine
		WHERE status = 'pending'
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying pending quarantine: %w", err)
	}
	defer rows.Close()

	var items []domain.QuarantineItem
	for rows.Next() {
		var item domain.QuarantineItem
		var dataType, dataJSON string
		if err := rows.Scan(&item.ID, &item.PartialISIN, &item.SchemeName,
			&item.AMC, &item.Folio, &dataType, &dataJSON); err != nil {
			return nil, fmt.Errorf("scanning quarantine row: %w", err)
		}
		item.DataType = domain.QuarantineDataType(dataType)
		item.Raw = []byte(dataJSON)
		items = append(items, item)
	}
	return items, rows.Err()
}

// SummaryRow aggregates pending items sharing a partial identifier and
// scheme name.
type SummaryRow struct {
	PartialISIN  string
	SchemeName   string
	AMC          string
	Items        int
	Holdings     int
	Transactions int
}

// Summary groups pending items by partial identifier and scheme.
func (s *Store) Summary() ([]SummaryRow, error) {
	rows, err := s.db.Query(`
		SELECT
			partial_isin,
			scheme_name,
			amc,
			COUNT(*),
			SUM(CASE WHEN data_type = 'holding' THEN 1 ELSE 0 END),
			SUM(CASE WHEN data_type = 'transaction' THEN 1 ELSE 0 END)
		FROM quarantine
		WHERE status = 'pending'
		GROUP BY partial_isin, scheme_name
		ORDER BY MIN(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying quarantine summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.PartialISIN, &r.SchemeName, &r.AMC,
			&r.Items, &r.Holdings, &r.Transactions); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcome reports what a Resolve call recovered.
type Outcome struct {
	ResolvedISIN string
	Holdings     int
	Transactions int
}

// Resolve marks pending items matching the partial identifier (or, when
// that is empty, the scheme name) as resolved with the supplied full
// identifier, and installs a manual override so future parses resolve the
// scheme directly. Re-parsing the source statement then imports the data
// canonically.
func (s *Store) Resolve(partialISIN, schemeName, resolvedISIN string, res *resolver.Resolver) (*Outcome, error) {
	if !domain.ValidISIN(resolvedISIN) {
		return nil, fmt.Errorf("invalid resolved ISIN: %q", resolvedISIN)
	}

	var rows *sql.Rows
	var err error
	switch {
	case partialISIN != "":
		rows, err = s.db.Query(`
			SELECT id, scheme_name, data_type FROM quarantine
			WHERE partial_isin = ? AND status = 'pending'`, partialISIN)
	case schemeName != "":
		rows, err = s.db.Query(`
			SELECT id, scheme_name, data_type FROM quarantine
			WHERE scheme_name = ? AND status = 'pending'`, schemeName)
	default:
		return nil, fmt.Errorf("either a partial ISIN or a scheme name is required")
	}
	if err != nil {
		return nil, fmt.Errorf("querying quarantine for resolution: %w", err)
	}
	defer rows.Close()

	var ids []string
	outcome := &Outcome{ResolvedISIN: resolvedISIN}
	pattern := ""
	for rows.Next() {
		var id, scheme, dataType string
		if err := rows.Scan(&id, &scheme, &dataType); err != nil {
			return nil, fmt.Errorf("scanning quarantine row: %w", err)
		}
		ids = append(ids, id)
		if pattern == "" && scheme != "" {
			pattern = scheme
		}
		switch domain.QuarantineDataType(dataType) {
		case domain.QuarantineHolding:
			outcome.Holdings++
		case domain.QuarantineTransaction:
			outcome.Transactions++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no pending quarantine items found")
	}

	if res != nil {
		if pattern == "" {
			pattern = partialISIN
		}
		if len(pattern) > overridePatternLen {
			pattern = pattern[:overridePatternLen]
		}
		if pattern != "" {
			if err := res.AddOverride(pattern, resolvedISIN); err != nil {
				log.WithError(err).Warn("could not install manual override")
			} else {
				log.WithFields(log.Fields{"pattern": pattern, "isin": resolvedISIN}).
					Info("installed manual override from quarantine resolution")
			}
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, resolvedISIN)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.Exec(fmt.Sprintf(`
		UPDATE quarantine
		SET status = 'resolved', resolved_isin = ?, resolved_at = CURRENT_TIMESTAMP
		WHERE id IN (%s) AND status = 'pending'`, placeholders), args...); err != nil {
		return nil, fmt.Errorf("marking quarantine items resolved: %w", err)
	}

	return outcome, nil
}

// Delete removes pending items by partial identifier or scheme name and
// returns the number deleted.
func (s *Store) Delete(partialISIN, schemeName string) (int64, error) {
	var result sql.Result
	var err error
	switch {
	case partialISIN != "":
		result, err = s.db.Exec(`
			DELETE FROM quarantine WHERE partial_isin = ? AND status = 'pending'`, partialISIN)
	case schemeName != "":
		result, err = s.db.Exec(`
			DELETE FROM quarantine WHERE scheme_name = ? AND status = 'pending'`, schemeName)
	default:
		return 0, fmt.Errorf("either a partial ISIN or a scheme name is required")
	}
	if err != nil {
		return 0, fmt.Errorf("deleting quarantine items: %w", err)
	}
	return result.RowsAffected()
}

// Stats summarizes the whole table.
type Stats struct {
	Total          int
	Pending        int
	Resolved       int
	UniquePartials int
}

// Stats returns aggregate counts across all items.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'resolved' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT partial_isin)
		FROM quarantine`).Scan(&st.Total, &st.Pending, &st.Resolved, &st.UniquePartials)
	if err != nil {
		return Stats{}, fmt.Errorf("querying quarantine stats: %w", err)
	}
	return st, nil
}
