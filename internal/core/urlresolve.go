package core

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"ncube/internal/infra/blob"
)

// Resolver fetches the payload a `url|cache|<url>` RULE-axis expression
// option points at, per §4.1/§5/§9: only one fetch runs per unique URL at a
// time, and a failed fetch leaves the cache unpoisoned (§7).
type Resolver struct {
	group  singleflight.Group
	cache  blob.Store
	client *http.Client
}

// NewResolver constructs a Resolver over cache (the blob store backing
// NCUBE_URLCACHE_DRIVER). client defaults to http.DefaultClient if nil.
func NewResolver(cache blob.Store, client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{cache: cache, client: client}
}

// Resolve returns url's body, fetching it at most once concurrently and
// serving subsequent callers' in-flight requests the same result. When
// useCache is true, a prior successful fetch is served from the blob store
// without hitting the network.
func (r *Resolver) Resolve(ctx context.Context, url string, useCache bool) ([]byte, error) {
	if useCache && r.cache != nil {
		if info, body, err := r.cache.Get(ctx, cacheKey(url)); err == nil {
			defer body.Close()
			_ = info
			return io.ReadAll(body)
		}
	}

	v, err, _ := r.group.Do(url, func() (any, error) {
		data, ferr := r.fetch(ctx, url)
		if ferr != nil {
			return nil, ferr
		}
		if useCache && r.cache != nil {
			if _, perr := r.cache.Put(ctx, cacheKey(url), bytes.NewReader(data), blob.PutOptions{ContentType: "application/octet-stream"}); perr != nil {
				return data, nil
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, &httpStatusError{url: url, status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func cacheKey(url string) string {
	h := sha1.Sum([]byte(url))
	return hex.EncodeToString(h[:])
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return "fetch " + e.url + ": unexpected status " + http.StatusText(e.status)
}

// urlResolveTimeout bounds how long a single RULE-axis URL fetch may take;
// callers without their own deadline should derive one from this.
const urlResolveTimeout = 10 * time.Second
