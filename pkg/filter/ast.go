// Package filter implements the combined-filter AST: a recursive boolean
// expression over facet/numeric/tag/string filters, parsed from both the
// Algolia `filters` string grammar and the structured `facetFilters`/
// `numericFilters`/`tagFilters` JSON vocabulary.
package filter

import (
	"fmt"
	"strings"
)

// ValueKind discriminates the FieldValue leaf variants a Filter compares
// against: Text, Integer, or Float.
type ValueKind int

const (
	Text ValueKind = iota
	Integer
	Float
)

// FieldValue is a single typed comparison operand.
type FieldValue struct {
	Kind ValueKind
	Str  string
	Int  int64
	Flt  float64
}

func TextValue(s string) FieldValue   { return FieldValue{Kind: Text, Str: s} }
func IntValue(i int64) FieldValue     { return FieldValue{Kind: Integer, Int: i} }
func FloatValue(f float64) FieldValue { return FieldValue{Kind: Float, Flt: f} }

func (v FieldValue) String() string {
	switch v.Kind {
	case Integer:
		return fmt.Sprintf("%d", v.Int)
	case Float:
		return fmt.Sprintf("%g", v.Flt)
	default:
		return v.Str
	}
}

// Op enumerates the comparison and combinator node kinds of a Filter.
type Op int

const (
	OpEquals Op = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpAnd
	OpOr
	OpNot
)

// Filter is a node in the combined-filter AST. Comparison nodes set Field
// and Value; And/Or set Children; Not sets Inner.
type Filter struct {
	Op       Op
	Field    string
	Value    FieldValue
	Children []*Filter
	Inner    *Filter
}

func Equals(field string, v FieldValue) *Filter      { return &Filter{Op: OpEquals, Field: field, Value: v} }
func NotEquals(field string, v FieldValue) *Filter    { return &Filter{Op: OpNotEquals, Field: field, Value: v} }
func GreaterThan(field string, v FieldValue) *Filter  { return &Filter{Op: OpGreaterThan, Field: field, Value: v} }
func GreaterThanOrEqual(field string, v FieldValue) *Filter {
	return &Filter{Op: OpGreaterThanOrEqual, Field: field, Value: v}
}
func LessThan(field string, v FieldValue) *Filter { return &Filter{Op: OpLessThan, Field: field, Value: v} }
func LessThanOrEqual(field string, v FieldValue) *Filter {
	return &Filter{Op: OpLessThanOrEqual, Field: field, Value: v}
}
func And(children ...*Filter) *Filter { return &Filter{Op: OpAnd, Children: children} }
func Or(children ...*Filter) *Filter  { return &Filter{Op: OpOr, Children: children} }
func Not(inner *Filter) *Filter       { return &Filter{Op: OpNot, Inner: inner} }

// String renders f back into the `filters` string grammar ParseString
// accepts, so a Filter built programmatically (e.g. a rule consequence) can
// round-trip through the wire API.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	switch f.Op {
	case OpEquals:
		return fmt.Sprintf("%s:%s", f.Field, quoteIfNeeded(f.Value))
	case OpNotEquals:
		return fmt.Sprintf("%s!=%s", f.Field, quoteIfNeeded(f.Value))
	case OpGreaterThan:
		return fmt.Sprintf("%s>%s", f.Field, quoteIfNeeded(f.Value))
	case OpGreaterThanOrEqual:
		return fmt.Sprintf("%s>=%s", f.Field, quoteIfNeeded(f.Value))
	case OpLessThan:
		return fmt.Sprintf("%s<%s", f.Field, quoteIfNeeded(f.Value))
	case OpLessThanOrEqual:
		return fmt.Sprintf("%s<=%s", f.Field, quoteIfNeeded(f.Value))
	case OpAnd:
		return joinChildren(f.Children, " AND ")
	case OpOr:
		return joinChildren(f.Children, " OR ")
	case OpNot:
		return "NOT " + wrapIfCompound(f.Inner)
	default:
		return ""
	}
}

func quoteIfNeeded(v FieldValue) string {
	if v.Kind != Text {
		return v.String()
	}
	if v.Str == "" || strings.ContainsAny(v.Str, " \t()\"") {
		return fmt.Sprintf("%q", v.Str)
	}
	return v.Str
}

func wrapIfCompound(f *Filter) string {
	if f == nil {
		return ""
	}
	if f.Op == OpAnd || f.Op == OpOr {
		return "(" + f.String() + ")"
	}
	return f.String()
}

func joinChildren(children []*Filter, sep string) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		parts = append(parts, wrapIfCompound(c))
	}
	return strings.Join(parts, sep)
}

// TagField is the reserved field name tag filters target.
const TagField = "_tags"

// Combine folds a slice of filter parts into a single AST node: zero parts
// yields nil, one part is returned unwrapped, and two or more are AND'd.
func Combine(parts []*Filter) *Filter {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		return And(parts...)
	}
}
