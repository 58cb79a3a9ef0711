// Package dedupe canonicalizes URLs and decides which saved item owns a
// canonical URL.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"net/url"
	"strings"
	"sync"
)

// ErrInvalidPlatformURL is returned for social-post URLs with no post ID.
var ErrInvalidPlatformURL = errors.New("invalid tweet url")

// ValidationError reports a URL that cannot be canonicalized.
type ValidationError struct {
	URL string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.URL)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CanonicalPostURL is the single identity form for x.com and twitter.com posts.
const CanonicalPostURL = "https://x.com/i/web/status/"

var platformHosts = []string{"x.com", "twitter.com"}

// trackingParams are stripped in addition to any utm_* parameter.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"ref_src": true,
	"mc_cid":  true,
	"mc_eid":  true,
}

// IsPlatformURL reports whether rawURL points at x.com or twitter.com.
func IsPlatformURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return isPlatformHost(u.Hostname())
}

func isPlatformHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range platformHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ExtractPostID returns the numeric status ID of a social-post URL.
func ExtractPostID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !isPlatformHost(u.Hostname()) {
		return "", false
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for i := 0; i+1 < len(parts); i++ {
		if (parts[i] == "status" || parts[i] == "statuses") && isDigits(parts[i+1]) {
			return parts[i+1], true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Canonicalize returns the identity form of rawURL. Fragments and tracking
// parameters are dropped, the scheme and host are lowercased, and social-post
// URLs collapse to a single form keyed by post ID. Canonicalize is idempotent.
func Canonicalize(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &ValidationError{URL: rawURL, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &ValidationError{URL: rawURL, Err: errors.New("url must be absolute")}
	}

	if isPlatformHost(u.Hostname()) {
		id, ok := ExtractPostID(trimmed)
		if !ok {
			return "", &ValidationError{URL: rawURL, Err: ErrInvalidPlatformURL}
		}
		return CanonicalPostURL + id, nil
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = stripTracking(u.RawQuery)
	u.ForceQuery = false
	return u.String(), nil
}

// stripTracking removes tracking parameters while keeping the order and
// encoding of everything else.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name := pair
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			name = pair[:eq]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// ContentHash returns the hex SHA-256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ClaimSet records which item has claimed each canonical URL within a run.
// A claim is in flight until its holder either keeps it, once the canonical
// URL is persisted, or releases it. It is safe for concurrent use.
type ClaimSet struct {
	mu     sync.Mutex
	claims map[string]*claim
}

type claim struct {
	owner string
	kept  bool
	done  chan struct{}
}

// NewClaimSet creates an empty claim set.
func NewClaimSet() *ClaimSet {
	return &ClaimSet{claims: make(map[string]*claim)}
}

// Claim registers id as the owner of canonical unless another item already
// holds it. It returns the owner and whether id is that owner. When another
// item holds an in-flight claim, wait is closed once that claim is kept or
// released; it is nil when the returned owner is settled.
func (c *ClaimSet) Claim(canonical, id string) (owner string, won bool, wait <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.claims[canonical]; ok {
		if cl.owner == id {
			return id, true, nil
		}
		if cl.kept {
			return cl.owner, false, nil
		}
		return cl.owner, false, cl.done
	}
	c.claims[canonical] = &claim{owner: id, done: make(chan struct{})}
	return id, true, nil
}

// Keep settles id's claim on canonical.
func (c *ClaimSet) Keep(canonical, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.claims[canonical]; ok && cl.owner == id && !cl.kept {
		cl.kept = true
		close(cl.done)
	}
}

// Release drops id's claim on canonical so a later item may take it.
func (c *ClaimSet) Release(canonical, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.claims[canonical]; ok && cl.owner == id {
		delete(c.claims, canonical)
		if !cl.kept {
			close(cl.done)
		}
	}
}

// OwnerFinder looks up the item that owns a canonical URL in the store.
type OwnerFinder interface {
	FindByCanonicalURL(ctx context.Context, canonicalURL string) (*core.Item, error)
}

// Deduplicator decides canonical URL ownership across the store and the
// items currently in flight.
type Deduplicator struct {
	store  OwnerFinder
	claims *ClaimSet
}

// NewDeduplicator creates a Deduplicator with a fresh claim set.
func NewDeduplicator(store OwnerFinder) *Deduplicator {
	return &Deduplicator{store: store, claims: NewClaimSet()}
}

// FindOwner returns the ID of another item that owns canonical, or "" when
// selfID may keep it. Stored owners win regardless of their status. An item
// racing an in-flight claim blocks until that claim settles, so it is never
// marked a duplicate of an item that then fails to persist the URL.
func (d *Deduplicator) FindOwner(ctx context.Context, canonical, selfID string) (string, error) {
	for {
		existing, err := d.store.FindByCanonicalURL(ctx, canonical)
		if err != nil {
			return "", fmt.Errorf("failed to look up canonical url: %w", err)
		}
		if existing != nil && existing.ID != selfID {
			return existing.ID, nil
		}

		owner, won, wait := d.claims.Claim(canonical, selfID)
		switch {
		case won:
			return "", nil
		case wait == nil:
			return owner, nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Keep settles selfID's claim once its canonical URL is persisted.
func (d *Deduplicator) Keep(canonical, selfID string) {
	d.claims.Keep(canonical, selfID)
}

// Release gives up selfID's in-flight claim, used when the item fails before
// its canonical URL is persisted.
func (d *Deduplicator) Release(canonical, selfID string) {
	d.claims.Release(canonical, selfID)
}
