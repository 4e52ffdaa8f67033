package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/gameserver"
	"github.com/cory-johannsen/duel/internal/session"
)

type fakeGame struct {
	mu      sync.Mutex
	snap    gameserver.Snapshot
	err     error
	latency time.Duration
	ended   []string
}

func (g *fakeGame) Snapshot(context.Context) (gameserver.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap, g.err
}

func (g *fakeGame) SetLatency(_ context.Context, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.latency = d
	return nil
}

func (g *fakeGame) EndMatch(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	for _, m := range g.snap.Matches {
		if m.ID == id {
			g.ended = append(g.ended, id)
			return true, nil
		}
	}
	return false, nil
}

func sampleSnapshot() gameserver.Snapshot {
	return gameserver.Snapshot{
		Clients:   3,
		LatencyMs: 20,
		Held:      1,
		Stats:     session.Stats{Matches: 2, Waiting: 1, Active: 1, TotalCreated: 4, TotalEnded: 2},
		Matches: []session.MatchInfo{
			{ID: "m1", State: "active", Host: "a", Guest: "b", PlayerCount: 2, Active: true, Clock: 12.5},
			{ID: "m2", State: "waiting", Host: "c", PlayerCount: 1},
		},
	}
}

func newTestAPI(t *testing.T, game *fakeGame) (*httptest.Server, *HealthAggregator) {
	t.Helper()
	health := NewHealthAggregator()
	api := NewAPI(config.AdminConfig{Host: "127.0.0.1"}, "duel-test", game, health, zaptest.NewLogger(t))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, health
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf []byte
	dec := json.NewDecoder(resp.Body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err == nil {
		buf = raw
	}
	return resp, buf
}

func TestAPI_Stats(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeGame{snap: sampleSnapshot()})

	resp, body := do(t, http.MethodGet, srv.URL+"/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, "duel-test", stats.Server)
	assert.Equal(t, 3, stats.Clients)
	assert.Equal(t, 20.0, stats.LatencyMs)
	assert.Equal(t, 1, stats.Held)
	assert.Equal(t, uint64(4), stats.Matches.TotalCreated)
}

func TestAPI_Matches(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeGame{snap: sampleSnapshot()})

	resp, body := do(t, http.MethodGet, srv.URL+"/matches")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []session.MatchInfo
	require.NoError(t, json.Unmarshal(body, &all))
	require.Len(t, all, 2)
	assert.Equal(t, "m1", all[0].ID)
	assert.Equal(t, 12.5, all[0].Clock)

	_, body = do(t, http.MethodGet, srv.URL+"/matches?state=waiting")
	var waiting []session.MatchInfo
	require.NoError(t, json.Unmarshal(body, &waiting))
	require.Len(t, waiting, 1)
	assert.Equal(t, "m2", waiting[0].ID)

	resp, body = do(t, http.MethodGet, srv.URL+"/matches/m2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one session.MatchInfo
	require.NoError(t, json.Unmarshal(body, &one))
	assert.Equal(t, "c", one.Host)

	resp, _ = do(t, http.MethodGet, srv.URL+"/matches/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_EmptyMatchListIsArray(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeGame{})
	_, body := do(t, http.MethodGet, srv.URL+"/matches")
	assert.JSONEq(t, "[]", string(body))
}

func TestAPI_EndMatch(t *testing.T) {
	game := &fakeGame{snap: sampleSnapshot()}
	srv, _ := newTestAPI(t, game)

	resp, _ := do(t, http.MethodDelete, srv.URL+"/matches/m1")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"m1"}, game.ended)

	resp, body := do(t, http.MethodDelete, srv.URL+"/matches/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Contains(t, e.Error, "nope")
}

func TestAPI_SetLatency(t *testing.T) {
	game := &fakeGame{}
	srv, _ := newTestAPI(t, game)

	resp, body := do(t, http.MethodPut, srv.URL+"/latency/150")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lr LatencyResponse
	require.NoError(t, json.Unmarshal(body, &lr))
	assert.Equal(t, 150.0, lr.LatencyMs)
	assert.Equal(t, 150*time.Millisecond, game.latency)

	resp, _ = do(t, http.MethodPut, srv.URL+"/latency/0.5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 500*time.Microsecond, game.latency)

	for _, bad := range []string{"fast", "-1", "NaN", "60001"} {
		resp, _ = do(t, http.MethodPut, srv.URL+"/latency/"+bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/latency/10")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPI_GameUnavailable(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeGame{err: gameserver.ErrStopped})
	for _, path := range []string{"/stats", "/matches", "/matches/m1"} {
		resp, _ := do(t, http.MethodGet, srv.URL+path)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
	resp, _ := do(t, http.MethodPut, srv.URL+"/latency/5")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, srv.URL+"/matches/m1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPI_Healthz(t *testing.T) {
	srv, health := newTestAPI(t, &fakeGame{})

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy"}`, string(body))

	health.AddCheck("gameserver", func(context.Context) error { return errors.New("loop stalled") })
	resp, body = do(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"gameserver":"loop stalled"}`, string(body))
}

func TestAPI_ListenAndServe(t *testing.T) {
	api := NewAPI(config.AdminConfig{Host: "127.0.0.1", Port: 0}, "duel", &fakeGame{}, NewHealthAggregator(), zaptest.NewLogger(t))
	errCh := make(chan error, 1)
	go func() { errCh <- api.ListenAndServe() }()
	require.Eventually(t, func() bool { return api.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, _ := do(t, http.MethodGet, "http://"+api.Addr()+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	api.Stop()
	api.Stop()
	assert.NoError(t, <-errCh)
}
