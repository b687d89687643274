package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
)

func agentAt(url string) domain.AgentDescriptor {
	return domain.AgentDescriptor{
		ID:         "ui-gen-agent",
		Capability: domain.CapabilityUIGen,
		Endpoint:   url,
	}
}

func TestHTTPPostSendsJSON(t *testing.T) {
	var gotBody, gotType, gotAuth, gotCap string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotCap = r.Header.Get("X-Coral-Capability")
		w.Write([]byte(`{"schema":{}}`))
	}))
	defer srv.Close()

	tr := NewHTTP(config.RouterConfig{}, WithAgentTokens(map[string]string{"ui-gen-agent": "s3cret"}))
	out, err := tr.Post(context.Background(), agentAt(srv.URL), []byte(`{"message":{}}`))
	require.NoError(t, err)

	assert.JSONEq(t, `{"schema":{}}`, string(out))
	assert.Equal(t, `{"message":{}}`, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, "ui-gen", gotCap)
}

func TestHTTPPostNoTokenForUnlistedAgent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tr := NewHTTP(config.RouterConfig{}, WithAgentTokens(map[string]string{"other": "x"}))
	_, err := tr.Post(context.Background(), agentAt(srv.URL), []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestHTTPPostNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTP(config.RouterConfig{})
	_, err := tr.Post(context.Background(), agentAt(srv.URL), []byte(`{}`))
	require.Error(t, err)

	var se *domain.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "agent exploded", se.Body)
}

func TestHTTPPostResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	tr := NewHTTP(config.RouterConfig{MaxResponseBytes: 16})
	_, err := tr.Post(context.Background(), agentAt(srv.URL), []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrLimitReached)
}

func TestHTTPPostHonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	tr := NewHTTP(config.RouterConfig{})
	_, err := tr.Post(ctx, agentAt(srv.URL), []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewPooledTransportDefaults(t *testing.T) {
	tr := NewPooledTransport(config.PoolConfig{})
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 0, tr.MaxConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.True(t, tr.ForceAttemptHTTP2)

	tr = NewPooledTransport(config.PoolConfig{MaxIdleConns: 7, MaxIdleConnsPerHost: 3, MaxConnsPerHost: 4, IdleConnTimeout: time.Second})
	assert.Equal(t, 7, tr.MaxIdleConns)
	assert.Equal(t, 3, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 4, tr.MaxConnsPerHost)
	assert.Equal(t, time.Second, tr.IdleConnTimeout)
}
