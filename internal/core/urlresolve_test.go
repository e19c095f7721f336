package core_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ncube/internal/core"
	blobmemory "ncube/internal/infra/blob/memory"
)

func TestResolverCachesSuccessfulFetch(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("rule body"))
	}))
	defer server.Close()

	cache := blobmemory.New()
	resolver := core.NewResolver(cache, server.Client())
	ctx := context.Background()

	body, err := resolver.Resolve(ctx, server.URL, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if string(body) != "rule body" {
		t.Fatalf("unexpected body: %s", body)
	}

	body2, err := resolver.Resolve(ctx, server.URL, true)
	if err != nil {
		t.Fatalf("resolve (cached): %v", err)
	}
	if string(body2) != "rule body" {
		t.Fatalf("unexpected cached body: %s", body2)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one network fetch, got %d", hits)
	}
}

func TestResolverDoesNotCacheFailedFetch(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := blobmemory.New()
	resolver := core.NewResolver(cache, server.Client())
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, server.URL, true); err == nil {
		t.Fatalf("expected a 500 response to error")
	}
	if _, err := resolver.Resolve(ctx, server.URL, true); err == nil {
		t.Fatalf("expected the failed fetch to not be cached, so a second attempt still fails")
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected two network attempts since the failure was never cached, got %d", hits)
	}
}

func TestResolverWithoutCacheAlwaysFetches(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	resolver := core.NewResolver(nil, server.Client())
	ctx := context.Background()
	if _, err := resolver.Resolve(ctx, server.URL, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := resolver.Resolve(ctx, server.URL, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected a nil cache to always hit the network, got %d", hits)
	}
}
