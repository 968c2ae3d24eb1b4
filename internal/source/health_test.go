package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeSourcesClassification(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)

	// 4xx still proves the host is reachable.
	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(denied.Close)

	down := failingServer(t)

	agg := New(Options{
		Sources: testSources(map[string]string{
			"govindia": healthy.URL,
			"sba":      denied.URL,
			"rapid":    down.URL,
		}),
		Store: newTestStore(t),
	})

	report := agg.ProbeSources(context.Background())
	require.Len(t, report, 3)
	assert.True(t, report["govindia"].Healthy)
	assert.True(t, report["sba"].Healthy)
	assert.False(t, report["rapid"].Healthy)
	assert.Equal(t, http.StatusInternalServerError, report["rapid"].StatusCode)
}

func TestProbeSourcesSkipsDisabled(t *testing.T) {
	sources := testSources(map[string]string{"govindia": "http://127.0.0.1:1"})
	off := sources["govindia"]
	off.Enabled = false
	sources["govindia"] = off

	agg := New(Options{Sources: sources, Store: newTestStore(t)})
	report := agg.ProbeSources(context.Background())
	assert.Empty(t, report)
}

func TestProbeUnreachableHostReportsError(t *testing.T) {
	agg := New(Options{
		Sources: testSources(map[string]string{"govindia": "http://127.0.0.1:1"}),
		Store:   newTestStore(t),
	})
	report := agg.ProbeSources(context.Background())
	require.Contains(t, report, "govindia")
	assert.False(t, report["govindia"].Healthy)
	assert.NotEmpty(t, report["govindia"].Error)
}
