package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

// embeddingsServer answers OpenAI/Jina style embedding requests with vectors of dim,
// failing the first failFirst calls with status.
func embeddingsServer(t *testing.T, dim int, failFirst int32, status int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"failure","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			data[i] = map[string]interface{}{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p, err := NewLocalProvider(Config{}, NewCache(10))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, ProviderLocal, p.Provider())
	assert.Equal(t, DefaultLocalModel, p.Model())
	assert.Equal(t, LocalDimension, p.Dimension())

	t.Run("deterministic unit vectors", func(t *testing.T) {
		a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "the quick brown fox"})
		require.NoError(t, err)
		b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "the quick brown fox"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, LocalDimension)

		var sum float64
		for _, v := range a.Vector {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
	})

	t.Run("different texts differ", func(t *testing.T) {
		a, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "one"})
		b, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "two"})
		assert.NotEqual(t, a.Vector, b.Vector)
	})

	t.Run("batch", func(t *testing.T) {
		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"x", "y", "z"}})
		require.NoError(t, err)
		assert.Len(t, resp.Embeddings, 3)
		assert.Equal(t, ProviderLocal, resp.Provider)
	})

	t.Run("cancelled context", func(t *testing.T) {
		fresh, _ := NewLocalProvider(Config{}, nil)
		cctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fresh.GenerateEmbedding(cctx, EmbeddingRequest{Text: "test"})
		assert.ErrorIs(t, err, ErrProviderFailed)
	})
}

func TestProviderCaching(t *testing.T) {
	ctx := context.Background()
	server, calls := embeddingsServer(t, 4, 0, 0)

	cache := NewCache(100)
	p, err := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Dimension: 4}, cache)
	require.NoError(t, err)
	p.retry = fastRetry()

	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached text"})
	require.NoError(t, err)
	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached text"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "second call should be served from cache")

	_, ok := cache.Get(DefaultJinaModel, "cached text")
	assert.True(t, ok)

	// A batch with one cached and two new texts sends only the new ones
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "cached text", "b"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
	assert.Equal(t, float32(2), resp.Embeddings[2].Vector[0])
	assert.Equal(t, 3, cache.Len())
}

func TestJinaProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful batch", func(t *testing.T) {
		server, _ := embeddingsServer(t, 8, 0, 0)
		p, err := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL + "/", Dimension: 8}, nil)
		require.NoError(t, err)
		defer p.Close()

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b"}})
		require.NoError(t, err)
		assert.Len(t, resp.Embeddings, 2)
		assert.Len(t, resp.Embeddings[0].Vector, 8)
		assert.Equal(t, ProviderJina, resp.Provider)
	})

	t.Run("retries server errors", func(t *testing.T) {
		server, calls := embeddingsServer(t, 4, 2, http.StatusInternalServerError)
		p, _ := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL}, nil)
		p.retry = fastRetry()

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		server, calls := embeddingsServer(t, 4, 10, http.StatusUnauthorized)
		p, _ := NewJinaProvider(Config{APIKey: "bad", BaseURL: server.URL}, nil)
		p.retry = fastRetry()

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})

	t.Run("sends bearer token", func(t *testing.T) {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"model":"m","data":[{"index":0,"embedding":[1,0]}]}`))
		}))
		defer server.Close()

		p, _ := NewJinaProvider(Config{APIKey: "secret", BaseURL: server.URL, Dimension: 2}, nil)
		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer secret", auth)
	})
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful embedding", func(t *testing.T) {
		server, calls := embeddingsServer(t, 16, 0, 0)
		p, err := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL + "/v1", Dimension: 16}, NewCache(10))
		require.NoError(t, err)
		defer p.Close()

		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Len(t, emb.Vector, 16)
		assert.Equal(t, ProviderOpenAI, emb.Provider)
		assert.Equal(t, DefaultOpenAIModel, emb.Model)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})

	t.Run("client error is not retried", func(t *testing.T) {
		server, calls := embeddingsServer(t, 4, 10, http.StatusBadRequest)
		p, _ := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL + "/v1"}, nil)
		p.retry = fastRetry()

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})
}

func TestOllamaProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful embedding", func(t *testing.T) {
		var path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.1,0.2,0.3]]}`))
		}))
		defer server.Close()

		p, err := NewOllamaProvider(Config{BaseURL: server.URL, Dimension: 3}, nil)
		require.NoError(t, err)
		defer p.Close()

		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "/api/embed", path)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
	})

	t.Run("missing model is not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
		}))
		defer server.Close()

		p, _ := NewOllamaProvider(Config{BaseURL: server.URL}, nil)
		p.retry = fastRetry()

		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient failure", func(t *testing.T) {
		callCount := 0
		result, err := retryWithBackoff(context.Background(), fastRetry(), func() (string, error) {
			callCount++
			if callCount < 2 {
				return "", fmt.Errorf("transient error")
			}
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 2, callCount)
	})

	t.Run("exponential backoff timing", func(t *testing.T) {
		config := RetryConfig{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2.0}
		start := time.Now()
		callCount := 0
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			callCount++
			return 0, fmt.Errorf("always fails")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, callCount)
		// 10ms + 20ms between the three attempts
		assert.GreaterOrEqual(t, time.Since(start).Milliseconds(), int64(30))
	})

	t.Run("returns last error", func(t *testing.T) {
		callCount := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (bool, error) {
			callCount++
			return false, fmt.Errorf("error %d", callCount)
		})
		assert.EqualError(t, err, "error 3")
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		base := errors.New("bad key")
		callCount := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			callCount++
			return 0, permanent(base)
		})
		assert.Equal(t, 1, callCount)
		assert.Equal(t, base, err)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		callCount := 0
		_, err := retryWithBackoff(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}, func() (int, error) {
			callCount++
			cancel()
			return 0, errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, callCount)
	})

	t.Run("zero retries still attempts once", func(t *testing.T) {
		callCount := 0
		_, _ = retryWithBackoff(context.Background(), RetryConfig{}, func() (int, error) {
			callCount++
			return 1, nil
		})
		assert.Equal(t, 1, callCount)
	})
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	assert.Equal(t, MaxRetries, config.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, config.BaseDelay)
	assert.Equal(t, 5000*time.Millisecond, config.MaxDelay)
	assert.Equal(t, BackoffMultiplier, config.Multiplier)
}

func BenchmarkLocalProvider(b *testing.B) {
	p, _ := NewLocalProvider(Config{}, nil)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: fmt.Sprintf("text %d", i)})
	}
}
