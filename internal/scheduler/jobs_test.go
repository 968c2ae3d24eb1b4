package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/loanfeed/internal/cache"
	"github.com/l0p7/loanfeed/internal/config"
	"github.com/l0p7/loanfeed/internal/source"
)

func loanServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	payload := []byte(`{"records":[{"scheme_id":"pmmy","scheme_name":"MUDRA Loan","max_loan_amount":"1000000"}]}`)
	mux.HandleFunc("/loan-schemes", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	})
	mux.HandleFunc("/credit-guarantee-programs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testFixture(t *testing.T, endpoint string) (*Scheduler, *cache.Store) {
	t.Helper()
	durable, err := cache.NewFile(t.TempDir())
	require.NoError(t, err)
	store := cache.New(cache.Options{Durable: durable})

	agg := source.New(source.Options{
		Sources: map[string]config.SourceConfig{
			"govindia": {Enabled: true, BaseEndpoint: endpoint, DailyLimit: 100},
		},
		Store: store,
	})

	s := New(Options{})
	require.NoError(t, RegisterJobs(s, config.DefaultConfig().Scheduler, agg, store))
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s, store
}

func TestRegisterJobsAttachesStandardSet(t *testing.T) {
	s, _ := testFixture(t, loanServer(t).URL)

	var names []string
	for _, st := range s.GetStatus() {
		names = append(names, st.Name)
		assert.Equal(t, StateNever, st.State)
	}
	assert.Equal(t, []string{
		JobDailyRefresh, JobGovernmentRefresh, JobCacheCleanup, JobMarketRefresh, JobHealthCheck,
	}, names)
}

func TestDailyRefreshJobAggregates(t *testing.T) {
	s, store := testFixture(t, loanServer(t).URL)

	status, err := s.TriggerJob(context.Background(), JobDailyRefresh)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, status.State)
	assert.Contains(t, status.Detail, "1 loans")

	_, ok := store.Get(context.Background(), "aggregate", nil)
	assert.True(t, ok, "the refreshed aggregate must land in the cache")
}

func TestDailyRefreshJobWarnsOnSourceFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)
	s, _ := testFixture(t, broken.URL)

	status, err := s.TriggerJob(context.Background(), JobDailyRefresh)
	require.NoError(t, err)
	assert.Equal(t, StateWarning, status.State, "fallback records keep the run at warning, not error")
}

func TestCacheCleanupJobReportsRemovals(t *testing.T) {
	s, _ := testFixture(t, loanServer(t).URL)

	status, err := s.TriggerJob(context.Background(), JobCacheCleanup)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, status.State)
	assert.Contains(t, status.Detail, "0 expired entries")
}

func TestHealthCheckJobSnapshotsState(t *testing.T) {
	s, store := testFixture(t, loanServer(t).URL)
	ctx := context.Background()

	status, err := s.TriggerJob(ctx, JobHealthCheck)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, status.State)

	snapshot, ok := LatestHealth(ctx, store)
	require.True(t, ok, "the health job must persist its snapshot")
	assert.True(t, snapshot.Cache.DurableAvailable)
	assert.True(t, snapshot.Sources["govindia"].Healthy)
	assert.False(t, snapshot.CheckedAt.IsZero())
}

func TestApplySchedulesRetimesChangedJobs(t *testing.T) {
	s, _ := testFixture(t, loanServer(t).URL)

	cfg := config.DefaultConfig().Scheduler
	cfg.DailyRefresh.Schedule = "15 5 * * *"
	ApplySchedules(s, cfg)

	for _, st := range s.GetStatus() {
		if st.Name == JobDailyRefresh {
			assert.Equal(t, "15 5 * * *", st.Schedule)
		}
		if st.Name == JobCacheCleanup {
			assert.Equal(t, config.DefaultConfig().Scheduler.CacheCleanup.Schedule, st.Schedule)
		}
	}
}
