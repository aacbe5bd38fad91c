package embedder

import "testing"

func TestDocumentTemplateRenderWithTemplate(t *testing.T) {
	tmpl := "{{doc.title}} by {{doc.author.name}}"
	dt := NewDocumentTemplate(&tmpl, nil)
	doc := map[string]any{
		"title":  "Dune",
		"author": map[string]any{"name": "Herbert"},
	}
	got := dt.Render(doc)
	if got != "Dune by Herbert" {
		t.Fatalf("got %q", got)
	}
}

func TestDocumentTemplateRenderMissingPathIsEmpty(t *testing.T) {
	tmpl := "[{{doc.missing}}]"
	dt := NewDocumentTemplate(&tmpl, nil)
	if got := dt.Render(map[string]any{}); got != "[]" {
		t.Fatalf("got %q", got)
	}
}

func TestDocumentTemplateRenderDefaultExcludesIDFields(t *testing.T) {
	dt := NewDocumentTemplate(nil, nil)
	doc := map[string]any{
		"_id":       "abc",
		"objectID":  "abc",
		"greeting":  "hello",
	}
	got := dt.Render(doc)
	if got != "hello" {
		t.Fatalf("got %q, expected only the non-id field", got)
	}
}

func TestDocumentTemplateRenderTruncatesAtMaxBytes(t *testing.T) {
	tmpl := "{{doc.body}}"
	max := 5
	dt := NewDocumentTemplate(&tmpl, &max)
	doc := map[string]any{"body": "hello world"}
	got := dt.Render(doc)
	if len(got) > 5 {
		t.Fatalf("expected truncation to <=5 bytes, got %q (%d bytes)", got, len(got))
	}
}

func TestDocumentTemplateRenderTruncatesAtUTF8Boundary(t *testing.T) {
	tmpl := "{{doc.body}}"
	// "café" is 5 bytes (c,a,f, 0xC3, 0xA9); truncating to 4 bytes would
	// split the 2-byte é rune, so the result must back off to 3 bytes.
	max := 4
	dt := NewDocumentTemplate(&tmpl, &max)
	doc := map[string]any{"body": "café"}
	got := dt.Render(doc)
	if got != "caf" {
		t.Fatalf("got %q, expected truncation to back off to the rune boundary", got)
	}
}

func TestDefaultTemplateMaxBytesIs400(t *testing.T) {
	dt := NewDocumentTemplate(nil, nil)
	if dt.MaxBytes != 400 {
		t.Fatalf("expected default max bytes 400, got %d", dt.MaxBytes)
	}
}

func TestDocumentTemplateRenderDefaultIsKeyOrdered(t *testing.T) {
	dt := NewDocumentTemplate(nil, nil)
	doc := map[string]any{
		"title":  "Dune",
		"author": "Herbert",
		"year":   1965,
	}
	// Non-string fields are skipped; string fields join in key order, so the
	// same document always renders the same embedder input.
	for i := 0; i < 10; i++ {
		if got := dt.Render(doc); got != "Herbert. Dune" {
			t.Fatalf("got %q, expected key-ordered rendering", got)
		}
	}
}
