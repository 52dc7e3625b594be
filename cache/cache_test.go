package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CacheGetSet(t *testing.T) {
	c := New(1024, 300*time.Second)

	_, err := c.Get("example.com")
	assert.ErrorIs(t, err, ErrCacheNotFound)

	c.Set("example.com", []string{"93.184.216.34"})

	addrs, err := c.Get("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"93.184.216.34"}, addrs)

	// lookups are case-insensitive
	addrs, err = c.Get("EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"93.184.216.34"}, addrs)

	assert.Equal(t, 1, c.Len())
}

func Test_CacheSupersede(t *testing.T) {
	c := New(1024, 300*time.Second)

	c.Set("example.com", []string{"192.0.2.1"})
	c.Set("example.com", []string{"192.0.2.2", "192.0.2.3"})

	addrs, err := c.Get("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.2", "192.0.2.3"}, addrs)
	assert.Equal(t, 1, c.Len())
}

func Test_CacheExpiry(t *testing.T) {
	c := New(1024, 10*time.Millisecond)

	c.Set("example.com", []string{"192.0.2.1"})

	_, err := c.Get("example.com")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = c.Get("example.com")
	assert.ErrorIs(t, err, ErrCacheNotFound)

	// expired entry is dropped, not kept around
	assert.Equal(t, 0, c.Len())
}

func Test_CachePurge(t *testing.T) {
	c := New(1024, 300*time.Second)

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("host%d.example.com", i), []string{"192.0.2.1"})
	}
	assert.Equal(t, 100, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func Test_CacheEviction(t *testing.T) {
	c := New(shardCount, 300*time.Second) // one slot per shard

	for i := 0; i < 10*shardCount; i++ {
		c.Set(fmt.Sprintf("host%d.example.com", i), []string{"192.0.2.1"})
	}

	assert.LessOrEqual(t, c.Len(), shardCount)
}

func Test_CacheConcurrent(t *testing.T) {
	c := New(4096, 300*time.Second)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				host := fmt.Sprintf("host%d.example.com", i%64)
				c.Set(host, []string{"192.0.2.1"})
				if addrs, err := c.Get(host); err == nil {
					assert.NotEmpty(t, addrs)
				}
				if i%100 == 0 {
					c.Purge()
				}
			}
		}(g)
	}
	wg.Wait()
}

func Test_Key(t *testing.T) {
	assert.Equal(t, Key("Example.COM"), Key("example.com"))
	assert.NotEqual(t, Key("example.com"), Key("example.org"))
}
