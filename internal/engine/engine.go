// Package engine is the in-memory search backend: a per-tenant, per-index
// document store with linear-scan filtering, substring/word-overlap keyword
// scoring, facet counting, and settings storage. It trades ranking
// sophistication for a small, lock-simple core the handler layer can drive
// directly.
package engine

import (
	"sort"
	"strings"
	"sync"

	"github.com/flapjack/flapjack/pkg/document"
	"github.com/flapjack/flapjack/pkg/embedder"
	"github.com/flapjack/flapjack/pkg/filter"
)

// Settings holds the subset of Algolia index settings the engine consults
// at query time.
type Settings struct {
	SearchableAttributes  []string
	AttributesForFaceting []string
	CustomRanking         []string
	AttributesToRetrieve  []string
	Embedders             map[string]embedder.Config
}

// Index is one tenant's named document collection.
type Index struct {
	mu       sync.RWMutex
	name     string
	docs     map[string]document.Document
	settings Settings
	synonyms map[string][]string
	rules    map[string]Rule
}

// Rule is a simplified Algolia query rule: when Condition matches the
// incoming query verbatim, Consequence's filter is AND'd onto the search.
type Rule struct {
	ObjectID    string
	Condition   string
	Consequence *filter.Filter
}

func newIndex(name string) *Index {
	return &Index{
		name:     name,
		docs:     make(map[string]document.Document),
		synonyms: make(map[string][]string),
		rules:    make(map[string]Rule),
	}
}

// Tenant owns every index belonging to one API key namespace.
type Tenant struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

func newTenant() *Tenant {
	return &Tenant{indexes: make(map[string]*Index)}
}

// Engine is the top-level registry of tenants, each lazily created on
// first use, mirroring pkg/oplog's Manager shape.
type Engine struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

func New() *Engine {
	return &Engine{tenants: make(map[string]*Tenant)}
}

func (e *Engine) tenantFor(tenant string) *Tenant {
	e.mu.RLock()
	t, ok := e.tenants[tenant]
	e.mu.RUnlock()
	if ok {
		return t
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tenants[tenant]; ok {
		return t
	}
	t = newTenant()
	e.tenants[tenant] = t
	return t
}

func (t *Tenant) indexFor(name string) *Index {
	t.mu.RLock()
	idx, ok := t.indexes[name]
	t.mu.RUnlock()
	if ok {
		return idx
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.indexes[name]; ok {
		return idx
	}
	idx = newIndex(name)
	t.indexes[name] = idx
	return idx
}

// Upsert inserts or replaces docs in tenant/indexName, keyed by
// Document.ID.
func (e *Engine) Upsert(tenant, indexName string, docs []document.Document) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, d := range docs {
		idx.docs[d.ID] = d
	}
}

// Delete removes the given object IDs from tenant/indexName.
func (e *Engine) Delete(tenant, indexName string, ids []string) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, id := range ids {
		delete(idx.docs, id)
	}
}

// DeleteByFilter removes every document matching f and returns the deleted
// object IDs.
func (e *Engine) DeleteByFilter(tenant, indexName string, f *filter.Filter) []string {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var deleted []string
	for id, doc := range idx.docs {
		if filter.Matches(f, doc) {
			deleted = append(deleted, id)
			delete(idx.docs, id)
		}
	}
	return deleted
}

// Get returns one document by ID.
func (e *Engine) Get(tenant, indexName, id string) (document.Document, bool) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	d, ok := idx.docs[id]
	return d, ok
}

// Count returns the number of documents currently stored in tenant/indexName.
func (e *Engine) Count(tenant, indexName string) int {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// ListIndexes returns every index name tenant has written to.
func (e *Engine) ListIndexes(tenant string) []string {
	t := e.tenantFor(tenant)
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.indexes))
	for name := range t.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteIndex drops an entire index.
func (e *Engine) DeleteIndex(tenant, indexName string) {
	t := e.tenantFor(tenant)
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.indexes, indexName)
}

// GetSettings returns the current settings for tenant/indexName.
func (e *Engine) GetSettings(tenant, indexName string) Settings {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.settings
}

// PutSettings replaces the settings for tenant/indexName.
func (e *Engine) PutSettings(tenant, indexName string, s Settings) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.settings = s
}

// GetSynonyms returns a copy of every registered synonym set of the index,
// keyed by word.
func (e *Engine) GetSynonyms(tenant, indexName string) map[string][]string {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string][]string, len(idx.synonyms))
	for k, v := range idx.synonyms {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// PutSynonym registers a word's expansion set.
func (e *Engine) PutSynonym(tenant, indexName, word string, expansions []string) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.synonyms[word] = expansions
}

// DeleteSynonym removes one word's synonym entry.
func (e *Engine) DeleteSynonym(tenant, indexName, word string) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.synonyms, word)
}

// ListRules returns every query rule registered for tenant/indexName.
func (e *Engine) ListRules(tenant, indexName string) []Rule {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rules := make([]Rule, 0, len(idx.rules))
	for _, r := range idx.rules {
		rules = append(rules, r)
	}
	return rules
}

// PutRule upserts a query rule.
func (e *Engine) PutRule(tenant, indexName string, r Rule) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rules[r.ObjectID] = r
}

// DeleteRule removes a query rule by ID.
func (e *Engine) DeleteRule(tenant, indexName, objectID string) {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.rules, objectID)
}

// matchingRuleFilter returns the AND of every rule whose Condition matches
// query verbatim, or nil if none apply.
func (idx *Index) matchingRuleFilter(query string, enableRules bool) *filter.Filter {
	if !enableRules || len(idx.rules) == 0 {
		return nil
	}
	var parts []*filter.Filter
	for _, r := range idx.rules {
		if r.Condition == query && r.Consequence != nil {
			parts = append(parts, r.Consequence)
		}
	}
	return filter.Combine(parts)
}

// searchableText concatenates every configured searchable attribute's text
// content (falling back to all Text/Facet fields when none are configured)
// for keyword scoring.
func (idx *Index) searchableText(doc document.Document) string {
	var b strings.Builder
	attrs := idx.settings.SearchableAttributes
	if len(attrs) == 0 {
		for _, fv := range doc.Fields {
			appendTextValue(&b, fv)
		}
		return b.String()
	}
	for _, attr := range attrs {
		if fv, ok := doc.Fields[attr]; ok {
			appendTextValue(&b, fv)
		}
	}
	return b.String()
}

func appendTextValue(b *strings.Builder, fv document.FieldValue) {
	switch fv.Kind {
	case document.Text, document.Facet:
		b.WriteString(fv.Str)
		b.WriteByte(' ')
	case document.Array:
		for _, item := range fv.Items {
			appendTextValue(b, item)
		}
	}
}
