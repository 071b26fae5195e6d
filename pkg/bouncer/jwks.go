package bouncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/aussiebroadwan/bouncer/pkg/jwtx"
)

// DefaultJWKSCacheTTL is how long a fetched key set is served from cache
// before the next FetchKeys call goes back to the provider.
const DefaultJWKSCacheTTL = 15 * time.Minute

const jwksCacheKey = "jwks"

// JWKSClient fetches the provider's signing keys and caches the parsed
// key set, so verifying a burst of ID tokens costs one HTTP request
// instead of one per token. Safe for concurrent use.
type JWKSClient struct {
	uri  string
	http *http.Client

	cache *ttlcache.Cache[string, *jwtx.KeySet]
}

// NewJWKSClient builds a fetcher for the given jwks_uri. A nil httpClient
// falls back to a 10 second timeout default, and ttl <= 0 means
// DefaultJWKSCacheTTL.
func NewJWKSClient(uri string, httpClient *http.Client, ttl time.Duration) *JWKSClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultJWKSCacheTTL
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *jwtx.KeySet](ttl),
		// Key rotation has a deadline. Serving a hit must not push it out.
		ttlcache.WithDisableTouchOnHit[string, *jwtx.KeySet](),
	)
	go cache.Start()

	return &JWKSClient{
		uri:   uri,
		http:  httpClient,
		cache: cache,
	}
}

// FetchKeys returns the provider's current key set, from cache when fresh.
// A failed refetch leaves the cache empty rather than serving stale keys,
// so callers see the error and can retry.
func (jc *JWKSClient) FetchKeys(ctx context.Context) (*jwtx.KeySet, error) {
	if item := jc.cache.Get(jwksCacheKey); item != nil {
		return item.Value(), nil
	}

	keys, err := jc.fetch(ctx)
	if err != nil {
		return nil, err
	}

	jc.cache.Set(jwksCacheKey, keys, ttlcache.DefaultTTL)
	return keys, nil
}

// Invalidate drops the cached key set. Call it after a verification fails
// with an unknown kid, then FetchKeys again to pick up rotated keys.
func (jc *JWKSClient) Invalidate() {
	jc.cache.Delete(jwksCacheKey)
}

// Close stops the cache's expiry loop.
func (jc *JWKSClient) Close() {
	jc.cache.Stop()
}

func (jc *JWKSClient) fetch(ctx context.Context) (*jwtx.KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jc.uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := jc.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("jwks request returned status %d: %s", resp.StatusCode, string(body))
	}

	var jwks jwtx.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode jwks: %w", err)
	}

	keys := jwtx.NewKeySet()
	if err := keys.ResetFromJWKS(jwks); err != nil {
		return nil, fmt.Errorf("failed to parse jwks: %w", err)
	}
	return keys, nil
}
