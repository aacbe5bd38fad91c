package filter

import "testing"

func TestParseStringEquals(t *testing.T) {
	f, err := ParseString(`category:shoes`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpEquals || f.Field != "category" || f.Value.Str != "shoes" {
		t.Fatalf("unexpected AST: %+v", f)
	}
}

func TestParseStringQuotedValue(t *testing.T) {
	f, err := ParseString(`category:"running shoes"`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Value.Str != "running shoes" {
		t.Fatalf("unexpected value: %q", f.Value.Str)
	}
}

func TestParseStringNumericComparison(t *testing.T) {
	f, err := ParseString(`price > 100`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpGreaterThan || f.Value.Int != 100 {
		t.Fatalf("unexpected AST: %+v", f)
	}
}

func TestParseStringAnd(t *testing.T) {
	f, err := ParseString(`price > 10 AND price < 100`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpAnd || len(f.Children) != 2 {
		t.Fatalf("unexpected AST: %+v", f)
	}
}

func TestParseStringOrLowerPrecedenceThanAnd(t *testing.T) {
	f, err := ParseString(`brand:nike AND price < 50 OR brand:adidas`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpOr || len(f.Children) != 2 {
		t.Fatalf("expected OR at top level, got %+v", f)
	}
	and := f.Children[0]
	if and.Op != OpAnd || len(and.Children) != 2 {
		t.Fatalf("expected AND as left operand of OR, got %+v", and)
	}
}

func TestParseStringParentheses(t *testing.T) {
	f, err := ParseString(`(brand:nike OR brand:adidas) AND price < 50`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpAnd || len(f.Children) != 2 {
		t.Fatalf("expected top-level AND, got %+v", f)
	}
	or := f.Children[0]
	if or.Op != OpOr {
		t.Fatalf("expected parenthesized OR preserved, got %+v", or)
	}
}

func TestParseStringNot(t *testing.T) {
	f, err := ParseString(`NOT brand:nike`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpNot || f.Inner.Field != "brand" {
		t.Fatalf("unexpected AST: %+v", f)
	}
}

func TestParseStringCommaIsAnd(t *testing.T) {
	f, err := ParseString(`brand:nike, category:shoes`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpAnd || len(f.Children) != 2 {
		t.Fatalf("comma should act as an AND connector, got %+v", f)
	}
}

func TestParseStringEmpty(t *testing.T) {
	f, err := ParseString("")
	if err != nil {
		t.Fatal(err)
	}
	if f != nil {
		t.Fatalf("expected nil for empty input, got %+v", f)
	}
}

func TestParseStringUnterminatedQuote(t *testing.T) {
	if _, err := ParseString(`category:"shoes`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestParseStringMissingOperator(t *testing.T) {
	if _, err := ParseString(`category shoes`); err == nil {
		t.Fatal("expected error for missing operator")
	}
}
