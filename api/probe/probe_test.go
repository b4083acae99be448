package probe

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	dashtesting "github.com/malbeclabs/calldash/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(CacheConfig{Logger: dashtesting.NewLogger()})
	require.NoError(t, err)
	return c
}

func TestCalldash_Probe_SecondsFromLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		length int64
		want   float64
	}{
		{"header only", 44, 0},
		{"smaller than header", 10, 0},
		{"ten seconds", 44 + 160000, 10},
		{"rounds down", 44 + 16000 + 7999, 1},
		{"rounds up", 44 + 16000 + 8000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SecondsFromLength(tt.length))
		})
	}
}

func TestCalldash_Probe_Cache(t *testing.T) {
	t.Parallel()

	t.Run("empty url returns zero without a request", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		assert.Equal(t, float64(0), c.Probe(t.Context(), ""))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("memoizes the first result", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		var length atomic.Int64
		length.Store(44 + 160000)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			calls.Add(1)
			w.Header().Set("Content-Length", strconv.FormatInt(length.Load(), 10))
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		c := newTestCache(t)
		url := srv.URL + "/rec.wav"
		assert.Equal(t, float64(10), c.Probe(t.Context(), url))

		length.Store(44 + 320000)
		assert.Equal(t, float64(10), c.Probe(t.Context(), url))
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, 1, c.Len())
	})

	t.Run("non-success response caches zero", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		c := newTestCache(t)
		assert.Equal(t, float64(0), c.Probe(t.Context(), srv.URL))
		assert.Equal(t, float64(0), c.Probe(t.Context(), srv.URL))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("transport failure caches zero", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := newTestCache(t)
		assert.Equal(t, float64(0), c.Probe(t.Context(), url))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("concurrent misses share one request", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			<-release
			w.Header().Set("Content-Length", strconv.Itoa(44+32000))
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		c := newTestCache(t)
		var wg sync.WaitGroup
		results := make([]float64, 8)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = c.Probe(t.Context(), srv.URL)
			}()
		}
		close(release)
		wg.Wait()

		for _, r := range results {
			assert.Equal(t, float64(2), r)
		}
		assert.Equal(t, int32(1), calls.Load())
	})
}
