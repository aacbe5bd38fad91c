package engine

import (
	"testing"

	"github.com/flapjack/flapjack/pkg/document"
	"github.com/flapjack/flapjack/pkg/filter"
	"github.com/flapjack/flapjack/pkg/geo"
)

func mustDoc(t *testing.T, id, name string, price float64) document.Document {
	t.Helper()
	obj := map[string]any{
		"objectID": id,
		"name":     name,
		"price":    price,
	}
	doc, err := document.FromJSON(obj, "")
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	return doc
}

func TestUpsertAndGet(t *testing.T) {
	e := New()
	doc := mustDoc(t, "1", "Wireless Headphones", 99.99)
	e.Upsert("tenant1", "products", []document.Document{doc})

	got, ok := e.Get("tenant1", "products", "1")
	if !ok {
		t.Fatal("want document to exist after upsert")
	}
	if got.Fields["name"].Str != "Wireless Headphones" {
		t.Fatalf("want name preserved, got %v", got.Fields["name"])
	}
}

func TestDelete(t *testing.T) {
	e := New()
	e.Upsert("t1", "products", []document.Document{mustDoc(t, "1", "shoes", 10)})
	e.Delete("t1", "products", []string{"1"})
	if _, ok := e.Get("t1", "products", "1"); ok {
		t.Fatal("want document removed after delete")
	}
}

func TestSearchKeywordMatch(t *testing.T) {
	e := New()
	e.Upsert("t1", "products", []document.Document{
		mustDoc(t, "1", "wireless headphones", 99.99),
		mustDoc(t, "2", "bluetooth speaker", 49.99),
		mustDoc(t, "3", "wired headphones", 19.99),
	})

	result := e.Search("t1", "products", Params{Query: "wireless headphones", HitsPerPage: 10})
	if result.NbHits != 2 {
		t.Fatalf("want 2 hits matching at least one term, got %d", result.NbHits)
	}
	if result.Hits[0].Doc.ID != "1" {
		t.Fatalf("want exact-phrase doc ranked first, got %s", result.Hits[0].Doc.ID)
	}
}

func TestSearchEmptyQueryMatchesAll(t *testing.T) {
	e := New()
	e.Upsert("t1", "products", []document.Document{
		mustDoc(t, "1", "a", 1),
		mustDoc(t, "2", "b", 2),
	})
	result := e.Search("t1", "products", Params{HitsPerPage: 10})
	if result.NbHits != 2 {
		t.Fatalf("want all docs to match an empty query, got %d", result.NbHits)
	}
}

func TestSearchWithFilter(t *testing.T) {
	e := New()
	e.Upsert("t1", "products", []document.Document{
		mustDoc(t, "1", "a", 50),
		mustDoc(t, "2", "b", 150),
	})
	f := filter.LessThan("price", filter.FloatValue(100))
	result := e.Search("t1", "products", Params{Filter: f, HitsPerPage: 10})
	if result.NbHits != 1 || result.Hits[0].Doc.ID != "1" {
		t.Fatalf("want only doc 1 to satisfy price<100, got %+v", result.Hits)
	}
}

func TestSearchPagination(t *testing.T) {
	e := New()
	for i := 0; i < 25; i++ {
		e.Upsert("t1", "products", []document.Document{mustDoc(t, itoa(i), "widget", float64(i))})
	}
	result := e.Search("t1", "products", Params{HitsPerPage: 10, Page: 1})
	if len(result.Hits) != 10 {
		t.Fatalf("want page size 10, got %d", len(result.Hits))
	}
	if result.NbPages != 3 {
		t.Fatalf("want 3 pages for 25 docs at 10/page, got %d", result.NbPages)
	}
}

func TestSearchFacets(t *testing.T) {
	e := New()
	docs := []map[string]any{
		{"objectID": "1", "brand": "sony"},
		{"objectID": "2", "brand": "sony"},
		{"objectID": "3", "brand": "bose"},
	}
	for _, obj := range docs {
		d, err := document.FromJSON(obj, "")
		if err != nil {
			t.Fatal(err)
		}
		e.Upsert("t1", "products", []document.Document{d})
	}
	result := e.Search("t1", "products", Params{HitsPerPage: 10, Facets: []string{"brand"}})
	counts := result.Facets["brand"]
	if len(counts) != 2 || counts[0].Value != "sony" || counts[0].Count != 2 {
		t.Fatalf("want sony:2 on top, got %+v", counts)
	}
}

func TestWithinGeoNoConstraint(t *testing.T) {
	doc := mustDoc(t, "1", "a", 1)
	if !withinGeo(doc, geo.Params{}) {
		t.Fatal("want no geo constraint to match unconditionally")
	}
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%10]}, b...)
		i /= 10
	}
	return string(b)
}
