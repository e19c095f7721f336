package core

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// permissionCache is the 30-minute decision cache checkPermission consults
// before re-evaluating roles/branch-permissions/sys.permissions for a given
// (user, appId, resource, action) key.
type permissionCache struct {
	lru *expirable.LRU[string, permissionDecision]
}

func newPermissionCache(ttl time.Duration) *permissionCache {
	return &permissionCache{lru: expirable.NewLRU[string, permissionDecision](4096, nil, ttl)}
}

func (c *permissionCache) get(key string) (permissionDecision, bool) {
	return c.lru.Get(key)
}

func (c *permissionCache) put(key string, d permissionDecision) {
	c.lru.Add(key, d)
}
