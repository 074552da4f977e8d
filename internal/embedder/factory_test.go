package embedder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		jinaKey   string
		openaiKey string
		apiKey    string
		want      string
	}{
		{name: "no keys", want: ProviderLocal},
		{name: "jina key", jinaKey: "j", want: ProviderJina},
		{name: "openai key", openaiKey: "o", want: ProviderOpenAI},
		{name: "jina wins", jinaKey: "j", openaiKey: "o", want: ProviderJina},
		{name: "explicit key", apiKey: "k", want: ProviderOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JINA_API_KEY", tt.jinaKey)
			t.Setenv("OPENAI_API_KEY", tt.openaiKey)
			assert.Equal(t, tt.want, DetectProvider(tt.apiKey))
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv("JINA_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	tests := []struct {
		name         string
		cfg          Config
		wantProvider string
		wantDim      int
		wantErr      error
	}{
		{name: "local default", cfg: Config{Provider: "local"}, wantProvider: ProviderLocal, wantDim: LocalDimension},
		{name: "local custom dim", cfg: Config{Provider: "LOCAL", Dimension: 64}, wantProvider: ProviderLocal, wantDim: 64},
		{name: "auto detect local", cfg: Config{}, wantProvider: ProviderLocal, wantDim: LocalDimension},
		{name: "jina", cfg: Config{Provider: "jina", APIKey: "k"}, wantProvider: ProviderJina, wantDim: JinaDimension},
		{name: "jina without key", cfg: Config{Provider: "jina"}, wantErr: ErrNoProviderEnabled},
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "k", Dimension: 512}, wantProvider: ProviderOpenAI, wantDim: 512},
		{name: "openai without key", cfg: Config{Provider: "openai"}, wantErr: ErrNoProviderEnabled},
		{name: "ollama", cfg: Config{Provider: "ollama"}, wantProvider: ProviderOllama, wantDim: OllamaDimension},
		{name: "ollama bad url", cfg: Config{Provider: "ollama", BaseURL: "://bad"}, wantErr: ErrInvalidInput},
		{name: "unknown", cfg: Config{Provider: "mystery"}, wantErr: ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			defer emb.Close()
			assert.Equal(t, tt.wantProvider, emb.Provider())
			assert.Equal(t, tt.wantDim, emb.Dimension())
		})
	}
}

func TestDefaultDimension(t *testing.T) {
	assert.Equal(t, JinaDimension, DefaultDimension("jina"))
	assert.Equal(t, OpenAIDimension, DefaultDimension("OpenAI"))
	assert.Equal(t, OllamaDimension, DefaultDimension("ollama"))
	assert.Equal(t, LocalDimension, DefaultDimension(""))
}
