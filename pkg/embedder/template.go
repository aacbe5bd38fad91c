package embedder

import (
	"sort"
	"strings"
)

// DocumentTemplate renders a JSON document into the searchable text handed
// to an embedder.
type DocumentTemplate struct {
	Template *string
	MaxBytes int
}

const defaultTemplateMaxBytes = 400

// NewDocumentTemplate builds a DocumentTemplate, defaulting MaxBytes to 400.
func NewDocumentTemplate(template *string, maxBytes *int) DocumentTemplate {
	t := DocumentTemplate{Template: template, MaxBytes: defaultTemplateMaxBytes}
	if maxBytes != nil {
		t.MaxBytes = *maxBytes
	}
	return t
}

// Render produces the text to embed for document. With a template,
// "{{doc.field.path}}" placeholders are substituted from the document; with
// none, every top-level string field (excluding _id/objectID) is
// concatenated with ". ". The result is truncated to MaxBytes at a UTF-8
// boundary.
func (t DocumentTemplate) Render(document map[string]any) string {
	var result string
	if t.Template != nil {
		result = renderTemplate(*t.Template, document)
	} else {
		result = renderDefault(document)
	}
	return truncateUTF8(result, t.MaxBytes)
}

func renderTemplate(template string, document map[string]any) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{doc.")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		afterOpen := rest[start+len("{{doc."):]
		end := strings.Index(afterOpen, "}}")
		if end < 0 {
			b.WriteString(rest[start:])
			return b.String()
		}
		fieldPath := afterOpen[:end]
		b.WriteString(resolvePath(document, fieldPath))
		rest = afterOpen[end+2:]
	}
}

func renderDefault(document map[string]any) string {
	// Key-sorted so the same document always renders the same embedder input.
	keys := make([]string, 0, len(document))
	for k := range document {
		if k == "_id" || k == "objectID" {
			continue
		}
		if _, ok := document[k].(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = document[k].(string)
	}
	return strings.Join(parts, ". ")
}

func resolvePath(document map[string]any, path string) string {
	var current any = document
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		v, ok := m[key]
		if !ok {
			return ""
		}
		current = v
	}
	s, _ := current.(string)
	return s
}

func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	end := maxBytes
	for end > 0 && !isUTF8Boundary(s, end) {
		end--
	}
	return s[:end]
}

func isUTF8Boundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	// A byte is a continuation byte of a multi-byte rune iff its top two
	// bits are 10 (0x80).
	return s[i]&0xC0 != 0x80
}
