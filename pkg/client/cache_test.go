package client

import (
	"testing"
	"time"
)

func TestCacheKey_FullParamTuple(t *testing.T) {
	base := ListParams{Page: 0, Limit: 15, SortBy: "createdAt", SortOrder: "desc"}
	baseKey := CacheKey(CollectionAll, base)

	variants := []ListParams{
		{Page: 1, Limit: 15, SortBy: "createdAt", SortOrder: "desc"},
		{Page: 0, Limit: 30, SortBy: "createdAt", SortOrder: "desc"},
		{Page: 0, Limit: 15, Filter: "PAT", SortBy: "createdAt", SortOrder: "desc"},
		{Page: 0, Limit: 15, SortBy: "patient_id", SortOrder: "desc"},
		{Page: 0, Limit: 15, SortBy: "createdAt", SortOrder: "asc"},
	}
	for _, p := range variants {
		if CacheKey(CollectionAll, p) == baseKey {
			t.Errorf("params %+v share a key with the base tuple", p)
		}
	}

	// Different collections never share keys.
	if CacheKey(CollectionMine, base) == baseKey {
		t.Error("collections share a key")
	}
	// Defaulted and explicit forms of the same tuple do share one.
	if CacheKey(CollectionAll, ListParams{}) != baseKey {
		t.Error("default tuple does not normalize to the explicit form")
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set("patients?page=0", 42)
	if v, ok := c.Get("patients?page=0"); !ok || v != 42 {
		t.Fatalf("get = %v, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("patients?page=0"); ok {
		t.Error("expired entry still served")
	}
}

func TestMemoryCache_InvalidateByPrefix(t *testing.T) {
	c := NewMemoryCache(0)
	c.Set("patients?page=0", 1)
	c.Set("patients?page=1", 2)
	c.Set("my-patients?page=0", 3)
	c.Set("patient:PAT-001", 4)

	c.Invalidate("patients?")
	if _, ok := c.Get("patients?page=0"); ok {
		t.Error("prefixed entry survived invalidation")
	}
	if _, ok := c.Get("patients?page=1"); ok {
		t.Error("prefixed entry survived invalidation")
	}
	if _, ok := c.Get("my-patients?page=0"); !ok {
		t.Error("unrelated collection invalidated")
	}
	if _, ok := c.Get("patient:PAT-001"); !ok {
		t.Error("detail entry invalidated")
	}
}
