package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/matzehuels/stacklock/pkg/requirement"
)

// exercise runs the behavior every storing backend must share.
func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, hit, err := c.Get(ctx, "missing"); err != nil || hit {
		t.Fatalf("Get(missing) = hit %v, err %v", hit, err)
	}
	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || !hit || string(data) != "value" {
		t.Fatalf("Get(key) = %q, %v, %v", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("entry survived Delete")
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete of absent key: %v", err)
	}

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	ok, err := Clear(ctx, c)
	if !ok || err != nil {
		t.Fatalf("Clear = %v, %v", ok, err)
	}
	for _, k := range []string{"a", "b"} {
		if _, hit, _ := c.Get(ctx, k); hit {
			t.Errorf("%s survived Clear", k)
		}
	}
}

func TestFileCache(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, c)
}

func TestFileCache_Expired(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "key", []byte("value"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("expired entry returned")
	}
}

func TestMemoryCache(t *testing.T) {
	exercise(t, NewMemoryCache(16))
}

func TestMemoryCache_Evicts(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)
	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	_ = c.Set(ctx, "c", []byte("3"), 0)
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("least recently used entry not evicted")
	}
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	c, err := NewRedisCache("redis://"+mr.Addr(), "test:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	// Keys outside the prefix are not touched by Clear.
	mr.Set("other:key", "keep")
	exercise(t, c)
	if got, _ := mr.Get("other:key"); got != "keep" {
		t.Errorf("foreign key = %q", got)
	}
}

func TestRedisCache_TTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	c, err := NewRedisCache("redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(DefaultRedisPrefix + "k") {
		t.Fatal("key not stored under the default prefix")
	}
	mr.FastForward(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("entry outlived its TTL")
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("NullCache should not store data")
	}
	if ok, _ := Clear(ctx, c); ok {
		t.Error("NullCache should not report Clear support")
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	if got := k.HTTPKey("pypi", "requests"); got != "http:pypi:requests" {
		t.Errorf("HTTPKey = %s", got)
	}

	git, _ := requirement.ParseSource("git+https://github.com/org/a.git@main", "")
	m1 := k.MetadataKey("a", "1.0", nil)
	m2 := k.MetadataKey("a", "1.0", &git)
	m3 := k.MetadataKey("a", "1.1", nil)
	if m1 == m2 || m1 == m3 {
		t.Error("metadata keys must differ by version and source")
	}
	if !strings.HasPrefix(m1, "metadata:") {
		t.Errorf("MetadataKey = %s", m1)
	}
	if k.ProjectKey("https://pypi.org/pypi", "a") == k.ProjectKey("https://test.pypi.org/pypi", "a") {
		t.Error("project keys must differ by index")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "user:123:")
	if got := scoped.HTTPKey("pypi", "flask"); got != "user:123:http:pypi:flask" {
		t.Errorf("HTTPKey = %s", got)
	}
	if got := scoped.MetadataKey("flask", "3.0", nil); !strings.HasPrefix(got, "user:123:metadata:") {
		t.Errorf("MetadataKey = %s", got)
	}

	if got := NewScopedKeyer(nil, "p:").HTTPKey("t", "k"); got != "p:http:t:k" {
		t.Errorf("nil inner HTTPKey = %s", got)
	}
}
