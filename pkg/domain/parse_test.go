package domain_test

import (
	"testing"

	"ncube/pkg/domain"
)

func TestParseDiscreteValueVariants(t *testing.T) {
	if v, err := domain.ParseDiscreteValue("sku", domain.ValueLong, "42"); err != nil {
		t.Fatalf("parse long: %v", err)
	} else if v != domain.LongValue(42) {
		t.Fatalf("expected LongValue(42), got %v", v)
	}

	if _, err := domain.ParseDiscreteValue("sku", domain.ValueLong, "not-a-number"); err == nil {
		t.Fatalf("expected invalid long literal to be rejected")
	}

	if v, err := domain.ParseDiscreteValue("price", domain.ValueDouble, "9.99"); err != nil {
		t.Fatalf("parse double: %v", err)
	} else if v != domain.DoubleValue(9.99) {
		t.Fatalf("expected DoubleValue(9.99), got %v", v)
	}
}

func TestParseRangeValueRejectsBadBounds(t *testing.T) {
	if r, err := domain.ParseRangeValue("age", domain.ValueLong, "[0, 18]"); err != nil {
		t.Fatalf("parse range: %v", err)
	} else if r.Low != domain.LongValue(0) || r.High != domain.LongValue(18) {
		t.Fatalf("unexpected bounds: %+v", r)
	}

	if _, err := domain.ParseRangeValue("age", domain.ValueLong, "18, 0"); err == nil {
		t.Fatalf("expected a decreasing range to be rejected")
	}

	if _, err := domain.ParseRangeValue("age", domain.ValueLong, "0, 1, 2"); err == nil {
		t.Fatalf("expected a range with more than two bounds to be rejected")
	}
}

func TestParseSetValueMixedElementsAndQuoting(t *testing.T) {
	rs, err := domain.ParseSetValue("region", domain.ValueString, `"east, coast", west, [1, 5]`)
	if err != nil {
		t.Fatalf("parse set: %v", err)
	}
	if len(rs.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d: %+v", len(rs.Elements), rs.Elements)
	}
	if rs.Elements[0].Discrete.String() != "east, coast" {
		t.Fatalf("expected quoted element to preserve its embedded comma, got %q", rs.Elements[0].Discrete)
	}
	if rs.Elements[2].Range == nil {
		t.Fatalf("expected the bracketed element to parse as a range")
	}
}

func TestParseSetValueRejectsEmpty(t *testing.T) {
	if _, err := domain.ParseSetValue("region", domain.ValueString, ""); err == nil {
		t.Fatalf("expected an empty set literal to be rejected")
	}
}

func TestParseNearestValueLatLonAndPoint3D(t *testing.T) {
	v, err := domain.ParseNearestValue("loc", domain.ValueComparable, "1.5, 2.5")
	if err != nil {
		t.Fatalf("parse latlon: %v", err)
	}
	if _, ok := v.(domain.LatLon); !ok {
		t.Fatalf("expected a 2-component nearest value to parse as LatLon, got %T", v)
	}

	v, err = domain.ParseNearestValue("loc", domain.ValueComparable, "1, 2, 3")
	if err != nil {
		t.Fatalf("parse point3d: %v", err)
	}
	if _, ok := v.(domain.Point3D); !ok {
		t.Fatalf("expected a 3-component nearest value to parse as Point3D, got %T", v)
	}

	if _, err := domain.ParseNearestValue("loc", domain.ValueComparable, "1, 2, 3, 4"); err == nil {
		t.Fatalf("expected a 4-component nearest coordinate to be rejected")
	}
}

func TestParseRuleValueRecognizesURLAndCacheOptions(t *testing.T) {
	expr, err := domain.ParseRuleValue("url|cache|https://example.com/rule.groovy")
	if err != nil {
		t.Fatalf("parse rule: %v", err)
	}
	if expr.URL != "https://example.com/rule.groovy" || !expr.Cacheable {
		t.Fatalf("unexpected expression: %+v", expr)
	}

	expr, err = domain.ParseRuleValue("input.qty > 10")
	if err != nil {
		t.Fatalf("parse rule: %v", err)
	}
	if expr.Cmd != "input.qty > 10" || expr.URL != "" {
		t.Fatalf("expected a plain expression body, got %+v", expr)
	}
}
