package util

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proxyFor(t *testing.T, fn func(*http.Request) (*url.URL, error), target string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, nil)
	require.NoError(t, err)
	u, err := fn(req)
	require.NoError(t, err)
	if u == nil {
		return ""
	}
	return u.String()
}

func TestNewProxyFunc(t *testing.T) {
	fn := NewProxyFunc("http://plain:3128", "http://secure:3128", "internal.example,localhost")

	assert.Equal(t, "http://secure:3128", proxyFor(t, fn, "https://api.openai.com/v1/chat/completions"))
	assert.Equal(t, "http://plain:3128", proxyFor(t, fn, "http://models.example/v1"))
	assert.Equal(t, "", proxyFor(t, fn, "https://vl.internal.example/v1"))
}

func TestNewProxyFunc_HTTPProxyCoversHTTPS(t *testing.T) {
	fn := NewProxyFunc("http://plain:3128", "", "")
	assert.Equal(t, "http://plain:3128", proxyFor(t, fn, "https://api.anthropic.com/v1/messages"))
}
