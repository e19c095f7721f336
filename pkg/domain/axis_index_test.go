package domain

import (
	"testing"

	"ncube/pkg/domain/metaprops"
)

func TestNearestIndexFindsClosestColumn(t *testing.T) {
	idx := newAxisIndex(Nearest, ValueLong)
	far := &Column{ID: 1, Value: LongValue(100)}
	near := &Column{ID: 2, Value: LongValue(10)}
	idx.insert(far)
	idx.insert(near)

	col, ok := idx.findPoint(LongValue(12))
	if !ok {
		t.Fatalf("expected a nearest match")
	}
	if col.ID != near.ID {
		t.Fatalf("expected the closer column to win, got id %d", col.ID)
	}
}

func TestNearestIndexNeverOverlaps(t *testing.T) {
	idx := newAxisIndex(Nearest, ValueLong)
	idx.insert(&Column{ID: 1, Value: LongValue(5)})
	if _, ok := idx.overlapsValue(LongValue(5)); ok {
		t.Fatalf("expected NEAREST axes to never report an overlap")
	}
}

func TestRuleIndexLooksUpByMetaName(t *testing.T) {
	idx := newAxisIndex(RuleAxis, ValueExpression)
	meta := metaprops.New()
	meta.Set("name", "bulk-discount")
	col := &Column{ID: 1, Meta: meta}
	idx.insert(col)

	found, ok := idx.findPoint(StringValue("Bulk-Discount"))
	if !ok || found.ID != col.ID {
		t.Fatalf("expected case-insensitive rule name lookup to find the column")
	}
}
