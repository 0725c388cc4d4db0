package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_EmptyURL(t *testing.T) {
	assert.NoError(t, Push(context.Background(), "", "profiles-cli"))
}

func TestPush_Pushgateway(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/metrics/job/profiles-cli"), r.URL.Path)
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ProfilesUpsertedTotal.Inc()
	require.NoError(t, Push(context.Background(), ts.URL, "profiles-cli"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestPush_GatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	err := Push(context.Background(), ts.URL, "profiles-cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
