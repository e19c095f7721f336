package domain_test

import (
	"testing"

	"ncube/pkg/domain"
)

func TestNewAxisRejectsEmptyName(t *testing.T) {
	if _, err := domain.NewAxis(1, "  ", domain.Discrete, domain.ValueString, domain.Sorted, false); err == nil {
		t.Fatalf("expected empty axis name to be rejected")
	}
}

func TestNewAxisRejectsNearestDefault(t *testing.T) {
	if _, err := domain.NewAxis(1, "location", domain.Nearest, domain.ValueComparable, domain.Sorted, true); err == nil {
		t.Fatalf("expected NEAREST axis to reject a default column")
	}
}

func TestNewAxisCoercesRuleShape(t *testing.T) {
	axis, err := domain.NewAxis(1, "condition", domain.RuleAxis, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if axis.ValueType() != domain.ValueExpression {
		t.Fatalf("expected RULE axis to be coerced to EXPRESSION value type, got %s", axis.ValueType())
	}
	if axis.Order() != domain.Display {
		t.Fatalf("expected RULE axis to be coerced to DISPLAY order, got %s", axis.Order())
	}
}

func TestAxisAddColumnRejectsOverlap(t *testing.T) {
	axis, err := domain.NewAxis(1, "sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("build axis: %v", err)
	}
	if _, err := axis.AddColumn("WIDGET", nil); err != nil {
		t.Fatalf("add first column: %v", err)
	}
	if _, err := axis.AddColumn("widget", nil); err == nil {
		t.Fatalf("expected case-insensitive discrete overlap to be rejected")
	} else if _, ok := err.(domain.AxisOverlapError); !ok {
		t.Fatalf("expected AxisOverlapError, got %T", err)
	}
}

func TestAxisFindColumnFallsBackToDefault(t *testing.T) {
	axis, err := domain.NewAxis(1, "sku", domain.Discrete, domain.ValueString, domain.Sorted, true)
	if err != nil {
		t.Fatalf("build axis: %v", err)
	}
	if _, err := axis.AddColumn("widget", nil); err != nil {
		t.Fatalf("add column: %v", err)
	}

	col, err := axis.FindColumn("gadget")
	if err != nil {
		t.Fatalf("expected fallback to default column, got error: %v", err)
	}
	if !col.IsDefault() {
		t.Fatalf("expected the default column to be returned for an unknown value")
	}
}

func TestAxisFindColumnNotFoundWithoutDefault(t *testing.T) {
	axis, err := domain.NewAxis(1, "sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("build axis: %v", err)
	}
	if _, err := axis.AddColumn("widget", nil); err != nil {
		t.Fatalf("add column: %v", err)
	}
	if _, err := axis.FindColumn("gadget"); err == nil {
		t.Fatalf("expected CoordinateNotFoundError for an unbound value with no default")
	} else if _, ok := err.(domain.CoordinateNotFoundError); !ok {
		t.Fatalf("expected CoordinateNotFoundError, got %T", err)
	}
}

func TestAxisRangeColumnLookup(t *testing.T) {
	axis, err := domain.NewAxis(1, "age", domain.Range_, domain.ValueLong, domain.Sorted, false)
	if err != nil {
		t.Fatalf("build axis: %v", err)
	}
	if _, err := axis.AddColumn("0, 18", nil); err != nil {
		t.Fatalf("add range: %v", err)
	}
	if _, err := axis.AddColumn("18, 65", nil); err != nil {
		t.Fatalf("add range: %v", err)
	}
	if _, err := axis.AddColumn("10, 20", nil); err == nil {
		t.Fatalf("expected overlapping range to be rejected")
	}

	col, err := axis.FindColumn("30")
	if err != nil {
		t.Fatalf("find column: %v", err)
	}
	if col.Value.(domain.Range).String() != "[18, 65]" {
		t.Fatalf("unexpected bound range: %s", col.Value)
	}
}

func TestAxisGetRuleColumnsStartingAt(t *testing.T) {
	axis, err := domain.NewAxis(1, "cond", domain.RuleAxis, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("build axis: %v", err)
	}
	names := []string{"first", "second", "third"}
	for _, n := range names {
		col, err := axis.AddColumn("input.x == 1", map[string]any{"name": n})
		if err != nil {
			t.Fatalf("add rule column %s: %v", n, err)
		}
		_ = col
	}

	cols, err := axis.GetRuleColumnsStartingAt("second")
	if err != nil {
		t.Fatalf("GetRuleColumnsStartingAt: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns starting at 'second', got %d", len(cols))
	}

	if _, err := axis.GetRuleColumnsStartingAt("missing"); err == nil {
		t.Fatalf("expected an unknown rule name to error")
	}
}

func TestAxisUpdateColumnsAddsUpdatesAndRemoves(t *testing.T) {
	axis, err := domain.NewAxis(1, "sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("build axis: %v", err)
	}
	keep, err := axis.AddColumn("widget", nil)
	if err != nil {
		t.Fatalf("add column: %v", err)
	}
	drop, err := axis.AddColumn("gadget", nil)
	if err != nil {
		t.Fatalf("add column: %v", err)
	}
	_ = drop

	newCols := []domain.Column{
		{ID: keep.ID, Value: domain.StringValue("widget-renamed")},
		{ID: -1, Value: domain.StringValue("thingamajig")},
	}
	if err := axis.UpdateColumns(newCols); err != nil {
		t.Fatalf("UpdateColumns: %v", err)
	}

	cols := axis.Columns()
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns after update, got %d", len(cols))
	}
	if _, err := axis.FindColumn("gadget"); err == nil {
		t.Fatalf("expected dropped column 'gadget' to no longer be findable")
	}
	if _, err := axis.FindColumn("widget-renamed"); err != nil {
		t.Fatalf("expected renamed column to be findable: %v", err)
	}
	if _, err := axis.FindColumn("thingamajig"); err != nil {
		t.Fatalf("expected newly added column to be findable: %v", err)
	}
}
