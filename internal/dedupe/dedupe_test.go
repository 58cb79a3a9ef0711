package dedupe

import (
	"context"
	"errors"
	"fmt"
	"inboxdigest/internal/core"
	"sync"
	"testing"
	"time"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/path?utm_source=newsletter&id=123#section", "https://example.com/path?id=123"},
		{"https://Example.COM/Path?b=2&a=1", "https://example.com/Path?b=2&a=1"},
		{"https://example.com/a?UTM_Campaign=x&fbclid=abc", "https://example.com/a"},
		{"https://example.com/a?", "https://example.com/a"},
		{"https://twitter.com/someone/status/1234567890?s=20", "https://x.com/i/web/status/1234567890"},
		{"https://mobile.twitter.com/someone/status/42", "https://x.com/i/web/status/42"},
		{"https://x.com/i/web/status/42", "https://x.com/i/web/status/42"},
		{"https://x.com/someone/status/42/photo/1", "https://x.com/i/web/status/42"},
		{"https://box.com/file/1", "https://box.com/file/1"},
	}
	for _, tt := range tests {
		got, err := Canonicalize(tt.in)
		if err != nil {
			t.Errorf("Canonicalize(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://example.com/path?utm_source=a&x=%20y#frag",
		"HTTPS://EXAMPLE.com/a/b/?q=1&utm_medium=email",
		"https://twitter.com/user/status/99",
		"https://news.example.org/story?id=5&ref_src=twsrc",
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		if err != nil {
			t.Fatalf("Canonicalize(%q) failed: %v", in, err)
		}
		twice, err := Canonicalize(once)
		if err != nil {
			t.Fatalf("Canonicalize(%q) failed: %v", once, err)
		}
		if once != twice {
			t.Errorf("Not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestCanonicalizePlatformWithoutID(t *testing.T) {
	for _, in := range []string{"https://x.com/someone", "https://twitter.com/home", "https://x.com/someone/status/abc"} {
		_, err := Canonicalize(in)
		if !errors.Is(err, ErrInvalidPlatformURL) {
			t.Errorf("Canonicalize(%q) error = %v, want ErrInvalidPlatformURL", in, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Expected ValidationError for %q", in)
		}
	}
}

func TestCanonicalizeRejectsRelative(t *testing.T) {
	if _, err := Canonicalize("not a url"); err == nil {
		t.Error("Expected error for relative URL")
	}
}

func TestExtractPostID(t *testing.T) {
	if id, ok := ExtractPostID("https://x.com/a/status/777"); !ok || id != "777" {
		t.Errorf("ExtractPostID = %q, %v", id, ok)
	}
	if _, ok := ExtractPostID("https://example.com/a/status/777"); ok {
		t.Error("Expected non-platform host to have no post ID")
	}
	if !IsPlatformURL("https://www.twitter.com/x") || IsPlatformURL("https://fox.com/x") {
		t.Error("IsPlatformURL host matching is wrong")
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash("abc") != ContentHash("abc") {
		t.Error("Expected deterministic hash")
	}
	if ContentHash("abc") == ContentHash("abcd") {
		t.Error("Expected different hashes for different content")
	}
}

type ownerStore struct {
	items map[string]*core.Item
}

func (s *ownerStore) FindByCanonicalURL(ctx context.Context, canonical string) (*core.Item, error) {
	return s.items[canonical], nil
}

func TestFindOwner(t *testing.T) {
	canonical := "https://x.com/i/web/status/1"
	store := &ownerStore{items: map[string]*core.Item{
		canonical: {ID: "A", Status: core.StatusError},
	}}
	d := NewDeduplicator(store)

	owner, err := d.FindOwner(context.Background(), canonical, "B")
	if err != nil {
		t.Fatalf("FindOwner failed: %v", err)
	}
	if owner != "A" {
		t.Errorf("Expected A to own the URL regardless of status, got %q", owner)
	}

	owner, err = d.FindOwner(context.Background(), canonical, "A")
	if err != nil || owner != "" {
		t.Errorf("Expected self match to be no owner, got %q, %v", owner, err)
	}
}

func TestFindOwnerInFlightClaims(t *testing.T) {
	d := NewDeduplicator(&ownerStore{})
	ctx := context.Background()
	const canonical = "https://example.com/a"

	if owner, _ := d.FindOwner(ctx, canonical, "first"); owner != "" {
		t.Fatalf("Expected first claim to win, got owner %q", owner)
	}

	// second waits while first is in flight and takes over once first fails.
	result := make(chan string, 1)
	go func() {
		owner, _ := d.FindOwner(ctx, canonical, "second")
		result <- owner
	}()
	select {
	case owner := <-result:
		t.Fatalf("Expected second to wait for the in-flight claim, got owner %q", owner)
	case <-time.After(20 * time.Millisecond):
	}
	d.Release(canonical, "first")
	if owner := <-result; owner != "" {
		t.Errorf("Expected released URL to be claimable, got owner %q", owner)
	}

	d.Keep(canonical, "second")
	if owner, _ := d.FindOwner(ctx, canonical, "third"); owner != "second" {
		t.Errorf("Expected kept claim to own the URL, got %q", owner)
	}
}

func TestFindOwnerWaitHonoursContext(t *testing.T) {
	d := NewDeduplicator(&ownerStore{})
	const canonical = "https://example.com/a"
	if owner, _ := d.FindOwner(context.Background(), canonical, "first"); owner != "" {
		t.Fatalf("Expected first claim to win, got owner %q", owner)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.FindOwner(ctx, canonical, "second"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestClaimSetConcurrent(t *testing.T) {
	claims := NewClaimSet()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, won, _ := claims.Claim("https://example.com/same", fmt.Sprintf("item-%d", i)); won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}
