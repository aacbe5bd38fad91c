package acl

import (
	"net/http"
	"testing"
)

func TestRequiredACL(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/1/keys", "admin"},
		{http.MethodPost, "/1/keys", "admin"},
		{http.MethodGet, "/2/searches", "analytics"},
		{http.MethodPost, "/1/events", "search"},
		{http.MethodGet, "/1/indexes", "listIndexes"},
		{http.MethodPost, "/1/indexes", "addObject"},
		{http.MethodPost, "/1/indexes/products/query", "search"},
		{http.MethodPost, "/1/indexes/products/browse", "browse"},
		{http.MethodPost, "/1/indexes/products/batch", "addObject"},
		{http.MethodGet, "/1/indexes/products/settings", "settings"},
		{http.MethodPut, "/1/indexes/products/settings", "editSettings"},
		{http.MethodDelete, "/1/indexes/products", "deleteIndex"},
		{http.MethodPost, "/1/indexes/products/clear", "deleteObject"},
		{http.MethodGet, "/1/tasks/123", "search"},
		{http.MethodGet, "/1/indexes/products/obj1", "search"},
		{http.MethodPut, "/1/indexes/products/obj1", "addObject"},
		{http.MethodDelete, "/1/indexes/products/obj1", "deleteObject"},
	}
	for _, c := range cases {
		if got := RequiredACL(c.method, c.path); got != c.want {
			t.Errorf("RequiredACL(%s, %s) = %q, want %q", c.method, c.path, got, c.want)
		}
	}
}

func TestExtractIndexName(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"/1/indexes/products/query", "products"},
		{"/1/indexes/myindex", "myindex"},
		{"/1/indexes/queries", ""},
		{"/1/indexes/objects", ""},
		{"/1/indexes", ""},
		{"/2/indexes/foo", ""},
	}
	for _, c := range cases {
		if got := ExtractIndexName(c.path); got != c.want {
			t.Errorf("ExtractIndexName(%s) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestIndexPatternMatches(t *testing.T) {
	if !IndexPatternMatches(nil, "anything") {
		t.Error("empty pattern list should match everything")
	}
	if !IndexPatternMatches([]string{"*"}, "anything") {
		t.Error("* should match everything")
	}
	if !IndexPatternMatches([]string{"products"}, "products") || IndexPatternMatches([]string{"products"}, "users") {
		t.Error("exact match semantics broken")
	}
	if !IndexPatternMatches([]string{"prod_*"}, "prod_us") || IndexPatternMatches([]string{"prod_*"}, "dev_us") {
		t.Error("prefix wildcard semantics broken")
	}
	if !IndexPatternMatches([]string{"*_prod"}, "us_prod") || IndexPatternMatches([]string{"*_prod"}, "us_dev") {
		t.Error("suffix wildcard semantics broken")
	}
	if !IndexPatternMatches([]string{"*prod*"}, "my_prod_index") || IndexPatternMatches([]string{"*prod*"}, "development") {
		t.Error("substring wildcard semantics broken")
	}
	if !IndexPatternMatches([]string{"products", "users"}, "users") {
		t.Error("multiple patterns should match any")
	}
}
