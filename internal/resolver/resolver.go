package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rumor-ml/casparse/internal/domain"
)

const (
	// referenceThreshold gates reference-database matches on scheme-name
	// similarity; fuzzyThreshold gates pure name-index matches, which have
	// no accompanying partial identifier evidence and so demand more.
	referenceThreshold = 0.6
	fuzzyThreshold     = 0.7

	refreshTimeout = 30 * time.Second
)

// Resolver recovers full ISINs from partial identifiers and scheme names.
// Reads are safe for concurrent use across independent parses; writes
// (override changes, refresh) are serialized internally and expected to
// be infrequent, out-of-band operations.
type Resolver struct {
	mu        sync.RWMutex
	reference map[string]SchemeInfo // ISIN → scheme info
	nameIndex map[string]string     // normalized name → ISIN
	overrides map[string]string     // scheme-name pattern → ISIN

	store   *Store
	client  *http.Client
	feedURL string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFeedURL overrides the reference feed endpoint.
func WithFeedURL(url string) Option {
	return func(r *Resolver) { r.feedURL = url }
}

// WithHTTPClient overrides the HTTP client used for refresh.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// New creates a resolver backed by the given store, loading whatever
// cached state exists. A missing cache is not an error; resolution
// simply degrades until a refresh populates it.
func New(store *Store, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		reference: make(map[string]SchemeInfo),
		nameIndex: make(map[string]string),
		overrides: make(map[string]string),
		store:     store,
		client:    &http.Client{Timeout: refreshTimeout},
		feedURL:   DefaultFeedURL,
	}
	for _, opt := range opts {
		opt(r)
	}

	schemes, err := store.LoadReference()
	switch {
	case err == nil:
		r.reference = schemes
		r.rebuildNameIndex()
		log.WithField("schemes", len(schemes)).Info("loaded reference database cache")
	case os.IsNotExist(err):
		log.Debug("no reference database cache, resolution degraded until refresh")
	default:
		return nil, fmt.Errorf("failed to load reference cache: %w", err)
	}

	overrides, err := store.LoadOverrides()
	switch {
	case err == nil:
		r.overrides = overrides
		log.WithField("overrides", len(overrides)).Info("loaded manual identifier overrides")
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	return r, nil
}

// rebuildNameIndex rebuilds the normalized-name index. Callers hold mu.
func (r *Resolver) rebuildNameIndex() {
	r.nameIndex = make(map[string]string, len(r.reference))
	for isin, info := range r.reference {
		if key := NormalizeSchemeName(info.Name); key != "" {
			r.nameIndex[key] = isin
		}
	}
}

// Resolve attempts to recover a full ISIN from a partial identifier and
// scheme name. Strategies run in order: manual overrides, reference
// database lookup constrained by the partial prefix, then fuzzy matching
// on the name index. Returns ("", false) when nothing qualifies.
func (r *Resolver) Resolve(partialISIN, schemeName, amc string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if isin, ok := r.checkOverrides(partialISIN, schemeName); ok {
		log.WithField("isin", isin).Info("resolved identifier from manual override")
		return isin, true
	}
	if isin, ok := r.lookupReference(partialISIN, schemeName); ok {
		log.WithField("isin", isin).Info("resolved identifier from reference database")
		return isin, true
	}
	if isin, ok := r.fuzzyMatch(partialISIN, schemeName); ok {
		log.WithField("isin", isin).Info("resolved identifier from fuzzy name match")
		return isin, true
	}
	return "", false
}

func (r *Resolver) checkOverrides(partialISIN, schemeName string) (string, bool) {
	schemeLower := strings.ToLower(schemeName)

	// Iterate patterns in sorted order so overlapping patterns resolve
	// deterministically.
	patterns := make([]string, 0, len(r.overrides))
	for p := range r.overrides {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		if !strings.Contains(schemeLower, strings.ToLower(pattern)) {
			continue
		}
		isin := r.overrides[pattern]
		if partialISIN != "" && !strings.HasPrefix(isin, partialISIN) {
			continue
		}
		return isin, true
	}
	return "", false
}

func (r *Resolver) lookupReference(partialISIN, schemeName string) (string, bool) {
	if len(r.reference) == 0 {
		return "", false
	}

	bestISIN := ""
	bestScore := 0.0
	for isin, info := range r.reference {
		if partialISIN != "" && !strings.HasPrefix(isin, partialISIN) {
			continue
		}
		score := Similarity(schemeName, info.Name)
		if score > referenceThreshold && score > bestScore {
			bestScore = score
			bestISIN = isin
		}
	}
	if bestISIN == "" {
		return "", false
	}
	log.WithFields(log.Fields{
		"isin":       bestISIN,
		"similarity": fmt.Sprintf("%.2f", bestScore),
	}).Debug("best reference database match")
	return bestISIN, true
}

func (r *Resolver) fuzzyMatch(partialISIN, schemeName string) (string, bool) {
	if len(r.nameIndex) == 0 {
		return "", false
	}
	query := NormalizeSchemeName(schemeName)
	if query == "" {
		return "", false
	}

	bestISIN := ""
	bestScore := 0.0
	for indexedName, isin := range r.nameIndex {
		if partialISIN != "" && !strings.HasPrefix(isin, partialISIN) {
			continue
		}
		score := similarityRatio(query, indexedName)
		if score > fuzzyThreshold && score > bestScore {
			bestScore = score
			bestISIN = isin
		}
	}
	return bestISIN, bestISIN != ""
}

// ResolveManual consults only the manual-override strategy. The parsing
// hot path uses this instead of Resolve: reference and fuzzy lookups are
// too eager for mid-parse recovery, where a wrong guess silently
// corrupts a scheme's records.
func (r *Resolver) ResolveManual(partialISIN, schemeName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkOverrides(partialISIN, schemeName)
}

// AddOverride records a manual scheme-pattern → ISIN mapping and persists
// the override store.
func (r *Resolver) AddOverride(schemePattern, isin string) error {
	if !domain.ValidISIN(isin) || !strings.HasPrefix(isin, "INF") {
		return fmt.Errorf("invalid ISIN format: %q", isin)
	}
	if strings.TrimSpace(schemePattern) == "" {
		return fmt.Errorf("scheme pattern cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[schemePattern] = isin
	if err := r.store.SaveOverrides(r.overrides); err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}
	log.WithFields(log.Fields{"pattern": schemePattern, "isin": isin}).Info("added manual override")
	return nil
}

// RemoveOverride deletes a manual mapping. Removing a pattern that does
// not exist is an error so callers catch typos.
func (r *Resolver) RemoveOverride(schemePattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.overrides[schemePattern]; !ok {
		return fmt.Errorf("no override for pattern %q", schemePattern)
	}
	delete(r.overrides, schemePattern)
	if err := r.store.SaveOverrides(r.overrides); err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}
	return nil
}

// Overrides returns a copy of the manual-override map.
func (r *Resolver) Overrides() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.overrides))
	for k, v := range r.overrides {
		out[k] = v
	}
	return out
}

// SchemeCount reports the number of reference database entries.
func (r *Resolver) SchemeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reference)
}

// Lookup returns the reference entry for a full ISIN.
func (r *Resolver) Lookup(isin string) (SchemeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.reference[isin]
	return info, ok
}

// Refresh fetches the reference feed, replaces the in-memory database,
// rebuilds the name index and persists the cache. Failure leaves the
// existing cache in place; callers should treat it as degraded
// resolution, not a fatal condition.
func (r *Resolver) Refresh(ctx context.Context) error {
	log.WithField("url", r.feedURL).Info("refreshing reference database")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.feedURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build feed request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch reference feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reference feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read reference feed: %w", err)
	}

	schemes := parseFeed(string(body))
	if len(schemes) == 0 {
		return fmt.Errorf("no schemes parsed from reference feed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reference = schemes
	r.rebuildNameIndex()
	if err := r.store.SaveReference(schemes); err != nil {
		return fmt.Errorf("failed to cache reference database: %w", err)
	}

	log.WithField("schemes", len(schemes)).Info("reference database refreshed")
	return nil
}
