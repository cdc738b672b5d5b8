package casparse_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rumor-ml/casparse/internal/output"
	"github.com/rumor-ml/casparse/internal/pipeline"
	"github.com/rumor-ml/casparse/internal/resolver"
	"github.com/rumor-ml/casparse/internal/scanner"
)

// TestEndToEnd_ScanParseWrite runs the full flow: discover a statement file,
// read its lines, parse it, and write the JSON report.
func TestEndToEnd_ScanParseWrite(t *testing.T) {
	tmpDir := t.TempDir()

	// Directory structure: {owner}/{period}/file.txt
	periodDir := filepath.Join(tmpDir, "rahul_sharma", "2024-03")
	if err := os.MkdirAll(periodDir, 0755); err != nil {
		t.Fatal(err)
	}

	statement := strings.Join([]string{
		"ABC Mutual Fund",
		"Folio No: 12345   PAN: ABCDE1234F",
		"RAHUL SHARMA",
		"Equity Fund ISIN: INF179K01234",
		"Registrar: CAMS",
		"01-Jan-2024 Purchase 10,000.00 219.123 45.6700 219.123",
		"Closing Unit Balance: 219.123 NAV on 31-Jan-2024 : INR 46.0000 Cost Value : 10000.00 Market Value : INR 10074.00",
	}, "\n")
	casFile := filepath.Join(periodDir, "cas.txt")
	if err := os.WriteFile(casFile, []byte(statement), 0644); err != nil {
		t.Fatal(err)
	}

	results, err := scanner.New(tmpDir).Scan()
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 statement file, got %d", len(results))
	}
	if results[0].Owner != "Rahul Sharma" {
		t.Errorf("expected owner 'Rahul Sharma', got %q", results[0].Owner)
	}
	if results[0].Period != "2024-03" {
		t.Errorf("expected period '2024-03', got %q", results[0].Period)
	}

	lines, err := scanner.ReadLines(results[0].Path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	res, err := resolver.New(resolver.NewStore(t.TempDir()))
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	p, err := pipeline.New(res)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	st := p.Parse(lines, results[0].Path)
	if len(st.Holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(st.Holdings))
	}
	if len(st.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(st.Transactions))
	}
	if len(st.Quarantine) != 0 {
		t.Errorf("expected empty quarantine, got %d items", len(st.Quarantine))
	}
	if st.Validation == nil || !st.Validation.IsValid {
		t.Errorf("expected a valid statement, got %+v", st.Validation)
	}

	outFile := filepath.Join(tmpDir, "cas.json")
	if err := output.WriteStatementToFile(st, outFile); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	var report map[string]json.RawMessage
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	for _, key := range []string{"investor", "holdings", "transactions", "validation"} {
		if _, ok := report[key]; !ok {
			t.Errorf("expected %q in output JSON, got keys %v", key, keysOf(report))
		}
	}
	if !strings.Contains(string(data), "INF179K01234") {
		t.Errorf("expected holding ISIN in output, got:\n%s", data)
	}
	if !strings.Contains(string(data), "RAHUL SHARMA") {
		t.Errorf("expected investor name in output, got:\n%s", data)
	}
}

// TestEndToEnd_UnresolvedISINQuarantined checks that a truncated identifier
// keeps its records out of the canonical lists.
func TestEndToEnd_UnresolvedISINQuarantined(t *testing.T) {
	res, err := resolver.New(resolver.NewStore(t.TempDir()))
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	p, err := pipeline.New(res)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	lines := []string{
		"ABC Mutual Fund",
		"Folio No: 12345 PAN: ABCDE1234F",
		"Obscure Fund ISIN: INF179 (truncated)",
		"01-Jan-2024 Purchase 10,000.00 219.123 45.6700 219.123",
		"Closing Unit Balance: 219.123 NAV on 31-Jan-2024 : INR 46.0000 Cost Value : 10000.00 Market Value : INR 10074.00",
	}

	st := p.Parse(lines, "cas.txt")
	if len(st.Holdings) != 0 || len(st.Transactions) != 0 {
		t.Errorf("expected empty canonical lists, got %d holdings, %d transactions",
			len(st.Holdings), len(st.Transactions))
	}
	if len(st.Quarantine) != 2 {
		t.Fatalf("expected 2 quarantined records, got %d", len(st.Quarantine))
	}

	// A manual override for the truncated prefix lets a re-parse recover.
	if err := res.AddOverride("Obscure Fund", "INF179K01234"); err != nil {
		t.Fatalf("add override: %v", err)
	}
	st = p.Parse(lines, "cas.txt")
	if len(st.Quarantine) != 0 {
		t.Errorf("expected empty quarantine after override, got %d", len(st.Quarantine))
	}
	if len(st.Holdings) != 1 || len(st.Transactions) != 1 {
		t.Errorf("expected recovered records, got %d holdings, %d transactions",
			len(st.Holdings), len(st.Transactions))
	}
	if len(st.Holdings) == 1 && st.Holdings[0].ISIN != "INF179K01234" {
		t.Errorf("expected resolved ISIN, got %q", st.Holdings[0].ISIN)
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
