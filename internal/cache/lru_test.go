package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_BasicGetPut(t *testing.T) {
	c := New[string](3)

	c.Put("a", "A")
	c.Put("b", "B")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", v)

	v, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_Eviction(t *testing.T) {
	c := New[int](2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a"

	_, ok := c.Get("a")
	assert.False(t, ok, "a should have been evicted")

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_AccessPromotesEntry(t *testing.T) {
	c := New[int](2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRU_UpdateExisting(t *testing.T) {
	c := New[string](2)

	c.Put("a", "A1")
	c.Put("a", "A2")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_ZeroSizeStoresNothing(t *testing.T) {
	c := New[int](0)
	c.Put("a", 1)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := New[int](16)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("k%d", (n*j)%32)
				c.Put(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
