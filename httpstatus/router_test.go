package httpstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/hotswap/health"
	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/registry"
)

type cacheStub struct{ name string }

func newFixture(t *testing.T) (*registry.Resolver, *lifecycle.Manager) {
	t.Helper()

	resolver := registry.NewResolver()
	for _, c := range []registry.Candidate{
		{Domain: "adapter", Key: "cache", Provider: "memory", Priority: 1, StackLevel: 9},
		{Domain: "adapter", Key: "cache", Provider: "redis", Priority: 10},
		{Domain: "adapter", Key: "queue", Provider: "sqs", Priority: 5},
	} {
		provider := c.Provider
		c.Factory = registry.Direct(func(context.Context) (any, error) {
			return &cacheStub{name: provider}, nil
		})
		resolver.Register(c)
	}

	manager, err := lifecycle.NewManager(resolver)
	require.NoError(t, err)
	_, err = manager.Activate(context.Background(), "adapter", "cache")
	require.NoError(t, err)
	return resolver, manager
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w
}

func TestNewHandler_RequiresSources(t *testing.T) {
	resolver, manager := newFixture(t)

	_, err := NewHandler(nil, resolver)
	require.ErrorIs(t, err, ErrStatusSourceNil)

	_, err = NewHandler(manager, nil)
	require.ErrorIs(t, err, ErrCandidateSourceNil)
}

func TestHandler_Statuses(t *testing.T) {
	resolver, manager := newFixture(t)
	h, err := NewHandler(manager, resolver)
	require.NoError(t, err)

	w := serve(t, h, "/statuses")
	require.Equal(t, http.StatusOK, w.Code)

	var statuses []lifecycle.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, lifecycle.StateReady, statuses[0].State)
	assert.Equal(t, "redis", statuses[0].CurrentProvider)

	w = serve(t, h, "/statuses/adapter/cache")
	require.Equal(t, http.StatusOK, w.Code)
	var st lifecycle.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "redis", st.CurrentProvider)
	assert.Equal(t, int64(1), st.SuccessfulSwaps)

	w = serve(t, h, "/statuses/adapter/queue")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "adapter/queue")
}

func TestHandler_Candidates(t *testing.T) {
	resolver, manager := newFixture(t)
	h, err := NewHandler(manager, resolver)
	require.NoError(t, err)

	t.Run("active", func(t *testing.T) {
		w := serve(t, h, "/candidates/adapter")
		require.Equal(t, http.StatusOK, w.Code)

		var active []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
		require.Len(t, active, 2)
		assert.Equal(t, "cache", active[0]["key"])
		assert.Equal(t, "redis", active[0]["provider"])
		assert.Equal(t, "<direct>", active[0]["factory"])
		assert.Equal(t, "queue", active[1]["key"])
	})

	t.Run("shadowed", func(t *testing.T) {
		w := serve(t, h, "/candidates/adapter/shadowed")
		require.Equal(t, http.StatusOK, w.Code)

		var shadowed []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &shadowed))
		require.Len(t, shadowed, 1)
		assert.Equal(t, "memory", shadowed[0]["provider"])
	})

	t.Run("unknown domain is an empty list", func(t *testing.T) {
		w := serve(t, h, "/candidates/nope")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("domains", func(t *testing.T) {
		w := serve(t, h, "/domains")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `["adapter"]`, w.Body.String())
	})
}

func TestHandler_Explain(t *testing.T) {
	resolver, manager := newFixture(t)
	h, err := NewHandler(manager, resolver)
	require.NoError(t, err)

	w := serve(t, h, "/candidates/adapter/cache/explain")
	require.Equal(t, http.StatusOK, w.Code)

	var exp struct {
		Ordered []struct {
			Candidate struct {
				Provider string `json:"provider"`
			} `json:"candidate"`
			Selected bool   `json:"selected"`
			Reason   string `json:"reason"`
		} `json:"ordered"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
	require.Len(t, exp.Ordered, 2)
	assert.Equal(t, "redis", exp.Ordered[0].Candidate.Provider)
	assert.True(t, exp.Ordered[0].Selected)
	assert.Equal(t, "lower priority (1 < 10)", exp.Ordered[1].Reason)

	w = serve(t, h, "/candidates/adapter/cache/explain?provider=memory")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
	assert.False(t, exp.Ordered[0].Selected)
	assert.True(t, exp.Ordered[1].Selected)

	w = serve(t, h, "/candidates/adapter/missing/explain")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ReadOnly(t *testing.T) {
	resolver, manager := newFixture(t)
	h, err := NewHandler(manager, resolver)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/statuses", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = serve(t, h, "/does/not/exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fixedHealth struct{ status *health.AggregatedStatus }

func (f fixedHealth) Status() *health.AggregatedStatus { return f.status }

func TestHandler_Health(t *testing.T) {
	resolver, manager := newFixture(t)

	t.Run("not registered without source", func(t *testing.T) {
		h, err := NewHandler(manager, resolver)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, serve(t, h, "/health").Code)
	})

	tests := []struct {
		name   string
		status *health.AggregatedStatus
		code   int
	}{
		{"no round yet", nil, http.StatusServiceUnavailable},
		{"healthy", &health.AggregatedStatus{OverallStatus: health.StatusHealthy}, http.StatusOK},
		{"warning", &health.AggregatedStatus{OverallStatus: health.StatusWarning}, http.StatusOK},
		{"critical", &health.AggregatedStatus{OverallStatus: health.StatusCritical}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(manager, resolver, WithHealth(fixedHealth{tt.status}))
			require.NoError(t, err)
			assert.Equal(t, tt.code, serve(t, h, "/health").Code)
		})
	}
}
