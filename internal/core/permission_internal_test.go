package core

import (
	"testing"
	"time"

	"ncube/pkg/domain"
)

func TestMatchResourceAxisSegmentRules(t *testing.T) {
	cases := []struct {
		pattern, resource string
		want              bool
	}{
		{"*", "sys.lock", true},
		{"*", "sys.lock/system", false},
		{"*/*", "sys.lock/system", true},
		{"widgets.*", "widgets.catalog", true},
		{"widgets.*", "gadgets.catalog", false},
		{"widgets.catalog/*", "widgets.catalog/sku", true},
		{"widgets.catalog/sku", "widgets.catalog/other", false},
	}
	for _, c := range cases {
		if got := matchResource(c.pattern, c.resource); got != c.want {
			t.Errorf("matchResource(%q, %q) = %v, want %v", c.pattern, c.resource, got, c.want)
		}
	}
}

func TestCompileWildcardIsCached(t *testing.T) {
	a := compileWildcard("widgets.*")
	b := compileWildcard("widgets.*")
	if a != b {
		t.Fatalf("expected cached *regexp.Regexp to be reused across calls")
	}
}

func TestPermissionCacheRoundTrip(t *testing.T) {
	c := newPermissionCache(30 * time.Minute)
	appID, err := domain.NewApplicationID("acme", "widgets", "1.0.0", domain.StatusSnapshot, domain.HeadBranch)
	if err != nil {
		t.Fatalf("build application id: %v", err)
	}
	key := permissionCacheKey("alice", bootstrapAppID(appID), "widgets.catalog", ActionUpdate)
	if _, ok := c.get(key); ok {
		t.Fatalf("expected empty cache miss")
	}
	c.put(key, permissionDecision{allowed: true})
	d, ok := c.get(key)
	if !ok || !d.allowed {
		t.Fatalf("expected cached allow decision, got %+v ok=%v", d, ok)
	}
}
