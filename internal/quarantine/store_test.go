package quarantine

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/casparse/internal/domain"
	"github.com/rumor-ml/casparse/internal/resolver"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "quarantine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newItem(partial string, dataType domain.QuarantineDataType) domain.QuarantineItem {
	return domain.QuarantineItem{
		ID:          uuid.NewString(),
		PartialISIN: partial,
		SchemeName:  "Obscure Small Cap Fund - Growth",
		AMC:         "Obscure Mutual Fund",
		Folio:       "12345/67",
		DataType:    dataType,
		Raw:         []byte(`{"units":"10.5"}`),
	}
}

func TestAddAndPending(t *testing.T) {
	s := newTestStore(t)

	item := newItem("INF179", domain.QuarantineHolding)
	require.NoError(t, s.Add(item))

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got := pending[0]
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, "INF179", got.PartialISIN)
	assert.Equal(t, "Obscure Small Cap Fund - Growth", got.SchemeName)
	assert.Equal(t, "Obscure Mutual Fund", got.AMC)
	assert.Equal(t, "12345/67", got.Folio)
	assert.Equal(t, domain.QuarantineHolding, got.DataType)
	assert.JSONEq(t, `{"units":"10.5"}`, string(got.Raw))
}

func TestAddAllBatch(t *testing.T) {
	s := newTestStore(t)

	items := []domain.QuarantineItem{
		newItem("INF179", domain.QuarantineHolding),
		newItem("INF179", domain.QuarantineTransaction),
		newItem("INF846", domain.QuarantineTransaction),
	}
	require.NoError(t, s.AddAll(items))
	require.NoError(t, s.AddAll(nil))

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestSummaryGroupsByPartial(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddAll([]domain.QuarantineItem{
		newItem("INF179", domain.QuarantineHolding),
		newItem("INF179", domain.QuarantineTransaction),
		newItem("INF179", domain.QuarantineTransaction),
	}))

	summary, err := s.Summary()
	require.NoError(t, err)
	require.Len(t, summary, 1)

	row := summary[0]
	assert.Equal(t, "INF179", row.PartialISIN)
	assert.Equal(t, 3, row.Items)
	assert.Equal(t, 1, row.Holdings)
	assert.Equal(t, 2, row.Transactions)
}

func TestResolveMarksItemsAndInstallsOverride(t *testing.T) {
	s := newTestStore(t)
	res, err := resolver.New(resolver.NewStore(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, s.AddAll([]domain.QuarantineItem{
		newItem("INF179", domain.QuarantineHolding),
		newItem("INF179", domain.QuarantineTransaction),
	}))

	outcome, err := s.Resolve("INF179", "", "INF179K01BB8", res)
	require.NoError(t, err)
	assert.Equal(t, "INF179K01BB8", outcome.ResolvedISIN)
	assert.Equal(t, 1, outcome.Holdings)
	assert.Equal(t, 1, outcome.Transactions)

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	overrides := res.Overrides()
	assert.Equal(t, "INF179K01BB8", overrides["Obscure Small Cap Fund - Growth"])
}

func TestResolveBySchemeName(t *testing.T) {
	s := newTestStore(t)

	item := newItem("", domain.QuarantineTransaction)
	require.NoError(t, s.Add(item))

	outcome, err := s.Resolve("", item.SchemeName, "INF179K01BB8", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Transactions)
}

func TestResolveRejectsInvalidISIN(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Resolve("INF179", "", "INF179", nil)
	assert.Error(t, err)
}

func TestResolveNothingPending(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Resolve("INF179", "", "INF179K01BB8", nil)
	assert.Error(t, err)
}

func TestDeletePending(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddAll([]domain.QuarantineItem{
		newItem("INF179", domain.QuarantineHolding),
		newItem("INF846", domain.QuarantineHolding),
	}))

	deleted, err := s.Delete("INF179", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "INF846", pending[0].PartialISIN)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	require.NoError(t, s.AddAll([]domain.QuarantineItem{
		newItem("INF179", domain.QuarantineHolding),
		newItem("INF179", domain.QuarantineTransaction),
		newItem("INF846", domain.QuarantineHolding),
	}))
	_, err = s.Resolve("INF846", "", "INF846K01EW2", nil)
	require.NoError(t, err)

	stats, err = s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Pending: 2, Resolved: 1, UniquePartials: 2}, stats)
}
