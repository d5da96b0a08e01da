package naver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolhopper/freeswim-etl/internal/domain"
)

type countingGeocoder struct {
	results map[string]domain.GeocodingResult
	err     error
	calls   int
}

func (g *countingGeocoder) Geocode(_ context.Context, address string) (domain.GeocodingResult, error) {
	g.calls++
	if g.err != nil {
		return domain.GeocodingResult{}, g.err
	}
	return g.results[address], nil
}

func TestCachedGeocoder_CachesMatches(t *testing.T) {
	inner := &countingGeocoder{results: map[string]domain.GeocodingResult{
		"서울 송파구": {Lat: 37.5145, Lng: 127.0823, Found: true},
	}}
	cached := NewCachedGeocoder(inner, 10)

	for i := 0; i < 3; i++ {
		result, err := cached.Geocode(context.Background(), "서울 송파구")
		require.NoError(t, err)
		assert.True(t, result.Found)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_DoesNotCacheMisses(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10)

	for i := 0; i < 3; i++ {
		result, err := cached.Geocode(context.Background(), "미상 주소")
		require.NoError(t, err)
		assert.False(t, result.Found)
	}
	// Every miss goes back to the API so a later catalog fix can land.
	assert.Equal(t, 3, inner.calls)
}

func TestCachedGeocoder_DoesNotCacheErrors(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("quota exceeded")}
	cached := NewCachedGeocoder(inner, 10)

	_, err := cached.Geocode(context.Background(), "서울")
	require.Error(t, err)
	_, err = cached.Geocode(context.Background(), "서울")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := newLRUCache(2)
	a := domain.GeocodingResult{Lat: 1, Found: true}
	b := domain.GeocodingResult{Lat: 2, Found: true}
	c := domain.GeocodingResult{Lat: 3, Found: true}

	cache.put("a", a)
	cache.put("b", b)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.get("a")
	require.True(t, ok)

	cache.put("c", c)

	_, ok = cache.get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	got, ok := cache.get("a")
	assert.True(t, ok)
	assert.Equal(t, a, got)
	_, ok = cache.get("c")
	assert.True(t, ok)
}

func TestLRUCache_UpdateExistingKey(t *testing.T) {
	cache := newLRUCache(2)
	cache.put("a", domain.GeocodingResult{Lat: 1, Found: true})
	cache.put("a", domain.GeocodingResult{Lat: 9, Found: true})

	got, ok := cache.get("a")
	require.True(t, ok)
	assert.Equal(t, 9.0, got.Lat)
}
