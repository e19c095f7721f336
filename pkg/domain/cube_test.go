package domain_test

import (
	"strings"
	"testing"

	"ncube/pkg/domain"
)

func testCubeAppID(t *testing.T) domain.ApplicationID {
	t.Helper()
	id, err := domain.NewApplicationID("acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)
	if err != nil {
		t.Fatalf("build application id: %v", err)
	}
	return id
}

func TestCubeSetCellAndLookup(t *testing.T) {
	cube := domain.NewCube("widgets.price", testCubeAppID(t))
	axis, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("add axis: %v", err)
	}
	if _, err := axis.AddColumn("widget", nil); err != nil {
		t.Fatalf("add column: %v", err)
	}

	if err := cube.SetCell(map[string]any{"sku": "widget"}, 9.99); err != nil {
		t.Fatalf("set cell: %v", err)
	}

	value, info, err := cube.Lookup(map[string]any{"sku": "widget"}, nil, "")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if value != 9.99 {
		t.Fatalf("expected 9.99, got %v", value)
	}
	if len(info.Results) != 1 {
		t.Fatalf("expected exactly one result for a non-RULE cube, got %d", len(info.Results))
	}
}

func TestCubeAddAxisRejectsDuplicateName(t *testing.T) {
	cube := domain.NewCube("widgets.price", testCubeAppID(t))
	if _, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, false); err != nil {
		t.Fatalf("add axis: %v", err)
	}
	if _, err := cube.AddAxis("SKU", domain.Discrete, domain.ValueString, domain.Sorted, false); err == nil {
		t.Fatalf("expected case-insensitive duplicate axis name to be rejected")
	}
}

func TestCubeLookupCoordinateNotFound(t *testing.T) {
	cube := domain.NewCube("widgets.price", testCubeAppID(t))
	axis, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("add axis: %v", err)
	}
	if _, err := axis.AddColumn("widget", nil); err != nil {
		t.Fatalf("add column: %v", err)
	}
	if _, _, err := cube.Lookup(map[string]any{"sku": "gadget"}, nil, ""); err == nil {
		t.Fatalf("expected an unbound coordinate with no default to error")
	}
}

func TestCubeLookupUsesDefaultCell(t *testing.T) {
	cube := domain.NewCube("widgets.price", testCubeAppID(t))
	cube.HasDefaultCell = true
	cube.DefaultValue = 0.0
	if _, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, true); err != nil {
		t.Fatalf("add axis: %v", err)
	}
	value, _, err := cube.Lookup(map[string]any{"sku": "anything"}, nil, "")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if value != 0.0 {
		t.Fatalf("expected the cube's default cell value, got %v", value)
	}
}

func TestCubeSha1StableAcrossCaseOnlyRenameAndChangesOnCellEdit(t *testing.T) {
	build := func(name string) *domain.Cube {
		cube := domain.NewCube(name, testCubeAppID(t))
		axis, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
		if err != nil {
			t.Fatalf("add axis: %v", err)
		}
		if _, err := axis.AddColumn("widget", nil); err != nil {
			t.Fatalf("add column: %v", err)
		}
		if err := cube.SetCell(map[string]any{"sku": "widget"}, 1); err != nil {
			t.Fatalf("set cell: %v", err)
		}
		return cube
	}

	a := build("widgets.price")
	b := build("WIDGETS.PRICE")
	if a.Sha1() != b.Sha1() {
		t.Fatalf("expected case-only cube rename to preserve sha1: %s vs %s", a.Sha1(), b.Sha1())
	}

	c := build("widgets.price")
	if err := c.SetCell(map[string]any{"sku": "widget"}, 2); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	if a.Sha1() == c.Sha1() {
		t.Fatalf("expected a changed cell value to change the sha1")
	}
}

func TestCubeCloneRoundTripsViaJSON(t *testing.T) {
	cube := domain.NewCube("widgets.price", testCubeAppID(t))
	axis, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("add axis: %v", err)
	}
	if _, err := axis.AddColumn("widget", nil); err != nil {
		t.Fatalf("add column: %v", err)
	}
	if err := cube.SetCell(map[string]any{"sku": "widget"}, "red"); err != nil {
		t.Fatalf("set cell: %v", err)
	}

	clone := cube.Clone()
	value, _, err := clone.Lookup(map[string]any{"sku": "widget"}, nil, "")
	if err != nil {
		t.Fatalf("lookup on clone: %v", err)
	}
	if value != "red" {
		t.Fatalf("expected clone to carry the same cell value, got %v", value)
	}
	if clone.Sha1() != cube.Sha1() {
		t.Fatalf("expected clone to have an identical sha1")
	}
}

func TestCubeJSONRoundTripPreservesColumnIDsAndRuleAxis(t *testing.T) {
	cube := domain.NewCube("widgets.discount", testCubeAppID(t))
	ruleAxis, err := cube.AddAxis("eligible", domain.RuleAxis, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("add rule axis: %v", err)
	}
	col, err := ruleAxis.AddColumn("input.qty > 10", map[string]any{"name": "bulk"})
	if err != nil {
		t.Fatalf("add rule column: %v", err)
	}

	data, err := cube.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := domain.NewCube("", domain.ApplicationID{})
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restoredAxis, ok := restored.GetAxis("eligible")
	if !ok {
		t.Fatalf("expected restored cube to carry the eligible axis")
	}
	restoredCols := restoredAxis.Columns()
	if len(restoredCols) != 1 || restoredCols[0].ID != col.ID {
		t.Fatalf("expected restored rule column to preserve its id, got %+v", restoredCols)
	}
}

// alwaysFireEvaluator fires every rule column it is handed, so the only
// thing distinguishing which columns are considered is ruleStart.
type alwaysFireEvaluator struct{}

func (alwaysFireEvaluator) Evaluate(domain.Expression, map[string]any) (bool, error) {
	return true, nil
}
func (alwaysFireEvaluator) Execute(domain.Expression, map[string]any) (any, error) { return nil, nil }

func buildTierCube(t *testing.T) *domain.Cube {
	t.Helper()
	cube := domain.NewCube("widgets.discount", testCubeAppID(t))
	cube.HasDefaultCell = true
	cube.DefaultValue = "fallback"
	tier, err := cube.AddAxis("tier", domain.RuleAxis, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("add rule axis: %v", err)
	}
	for _, name := range []string{"bronze", "silver", "gold"} {
		if _, err := tier.AddColumn(name, map[string]any{"name": name}); err != nil {
			t.Fatalf("add rule column %s: %v", name, err)
		}
	}
	return cube
}

func TestCubeLookupEvaluatesEveryRuleColumnWithoutRuleStart(t *testing.T) {
	cube := buildTierCube(t)
	_, info, err := cube.Lookup(map[string]any{}, alwaysFireEvaluator{}, "")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(info.Results) != 3 {
		t.Fatalf("expected all 3 rule columns to fire, got %d", len(info.Results))
	}
	if info.Results[0].RuleNames["tier"] != "bronze" {
		t.Fatalf("expected the first fired column to be bronze, got %s", info.Results[0].RuleNames["tier"])
	}
}

func TestCubeLookupRuleStartSkipsEarlierColumns(t *testing.T) {
	cube := buildTierCube(t)
	_, info, err := cube.Lookup(map[string]any{}, alwaysFireEvaluator{}, "silver")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(info.Results) != 2 {
		t.Fatalf("expected ruleStart=silver to skip bronze, leaving 2 results, got %d", len(info.Results))
	}
	if info.Results[0].RuleNames["tier"] != "silver" {
		t.Fatalf("expected the first fired column to be silver, got %s", info.Results[0].RuleNames["tier"])
	}
}

func TestCubeLookupRuleStartUnknownNameErrors(t *testing.T) {
	cube := buildTierCube(t)
	if _, _, err := cube.Lookup(map[string]any{}, alwaysFireEvaluator{}, "platinum"); err == nil {
		t.Fatalf("expected an unknown ruleStart name to error")
	}
}

func buildMultiAxisCube(t *testing.T) *domain.Cube {
	t.Helper()
	cube := domain.NewCube("widgets.price", testCubeAppID(t))
	skuAxis, err := cube.AddAxis("sku", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("add axis: %v", err)
	}
	if _, err := skuAxis.AddColumn("widget", nil); err != nil {
		t.Fatalf("add column: %v", err)
	}
	regionAxis, err := cube.AddAxis("region", domain.Discrete, domain.ValueString, domain.Sorted, false)
	if err != nil {
		t.Fatalf("add axis: %v", err)
	}
	if _, err := regionAxis.AddColumn("east", nil); err != nil {
		t.Fatalf("add column: %v", err)
	}
	if err := cube.SetCell(map[string]any{"sku": "widget", "region": "east"}, 9.99); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	return cube
}

func TestCubeJSONRoundTripColumnListForm(t *testing.T) {
	cube := buildMultiAxisCube(t)

	data, err := cube.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored := domain.NewCube("", domain.ApplicationID{})
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Sha1() != cube.Sha1() {
		t.Fatalf("expected column-list round trip to preserve sha1")
	}
	value, _, err := restored.Lookup(map[string]any{"sku": "widget", "region": "east"}, nil, "")
	if err != nil {
		t.Fatalf("lookup on restored cube: %v", err)
	}
	if value != 9.99 {
		t.Fatalf("expected restored cube to carry the same cell value, got %v", value)
	}
}

func TestCubeJSONRoundTripIndexedForm(t *testing.T) {
	cube := buildMultiAxisCube(t)
	cube.IndexFormat = true

	data, err := cube.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"indexFormat":true`) {
		t.Fatalf("expected the indexed form to carry the indexFormat flag, got %s", data)
	}

	restored := domain.NewCube("", domain.ApplicationID{})
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !restored.IndexFormat {
		t.Fatalf("expected restored cube to remember IndexFormat")
	}
	if restored.Sha1() != cube.Sha1() {
		t.Fatalf("expected indexed round trip to preserve sha1")
	}
	value, _, err := restored.Lookup(map[string]any{"sku": "widget", "region": "east"}, nil, "")
	if err != nil {
		t.Fatalf("lookup on restored cube: %v", err)
	}
	if value != 9.99 {
		t.Fatalf("expected restored cube to carry the same cell value, got %v", value)
	}
}
