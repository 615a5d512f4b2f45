package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/db"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/rcon/rcontest"
	"github.com/energizer-project/rconbridge/internal/server"
)

type fixture struct {
	api     *Server
	handler http.Handler
	cfg     *config.Config
	manager *server.Manager
	tokens  *db.TokensDatabase
	history *db.HistoryDatabase
	rcon    *rcontest.Server
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	srv := rcontest.NewServer(t, "secret", func(cmd string) string {
		if cmd == "status" {
			return "hostname: alpha\nmap     : de_inferno\nplayers : 1 humans, 0 bots (12/0 max)\n" +
				"# 2 1 \"Eve\" STEAM_1:0:7 01:00 40 0 active 196608 192.0.2.1:27005\n#end\n"
		}
		return strings.ToUpper(cmd)
	})
	cfg.UpsertTarget(config.ServerTarget{
		Name: "alpha", Address: srv.Addr(), Password: "secret", ReadTimeoutSec: 2, Enabled: true,
	})
	cfg.UpsertTarget(config.ServerTarget{
		Name: "locked", Address: srv.Addr(), Password: "wrong", ReadTimeoutSec: 2, Enabled: true,
	})
	if mutate != nil {
		mutate(cfg)
	}

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	database, err := db.NewDatabase(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	history, err := db.NewHistoryDatabase(database)
	require.NoError(t, err)
	history.Attach(bus)

	tokens, err := db.NewTokensDatabase(database)
	require.NoError(t, err)

	manager := server.NewManager(cfg, bus)
	t.Cleanup(func() { manager.CloseAll(context.Background()) })

	api := NewServer(cfg, bus, manager, history, tokens)
	return &fixture{
		api:     api,
		handler: api.Handler(),
		cfg:     cfg,
		manager: manager,
		tokens:  tokens,
		history: history,
		rcon:    srv,
	}
}

func (f *fixture) token(t *testing.T, perm db.Permission) string {
	t.Helper()
	secret, err := f.tokens.CreateToken(string(perm)+"-"+t.Name(), perm)
	require.NoError(t, err)
	return secret
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestPublicEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := f.do(t, http.MethodGet, "/api/public/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rconbridge", body["service"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec, body = f.do(t, http.MethodGet, "/api/public/info", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total_servers"])
	assert.Contains(t, body, "events")

	rec, _ = f.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/monitor/servers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/monitor/servers", "rcb_bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	monitor := f.token(t, db.PermissionMonitor)
	rec, body := f.do(t, http.MethodGet, "/api/monitor/servers", monitor, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])

	rec, _ = f.do(t, http.MethodPost, "/api/control/servers/alpha/execute", monitor, executeRequest{Command: "status"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/configure/tokens", monitor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExecuteAndHistory(t *testing.T) {
	f := newFixture(t, nil)
	control := f.token(t, db.PermissionControl)

	rec, body := f.do(t, http.MethodPost, "/api/control/servers/alpha/execute", control, executeRequest{Command: "users"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "USERS", body["body"])
	assert.EqualValues(t, 0, body["response_type"])
	id := body["id"].(string)

	require.Eventually(t, func() bool {
		entries, err := f.history.Recent("alpha", 10)
		return err == nil && len(entries) == 1
	}, time.Second, 10*time.Millisecond)

	rec, body = f.do(t, http.MethodGet, "/api/monitor/history?server=alpha&limit=5", control, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].(map[string]any)["id"])

	rec, body = f.do(t, http.MethodGet, "/api/monitor/servers/alpha", control, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", body["state"])

	rec, _ = f.do(t, http.MethodPost, "/api/control/servers/alpha/disconnect", control, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.manager.ConnectedCount())
}

func TestServerStatus(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(t, db.PermissionMonitor)

	rec, body := f.do(t, http.MethodGet, "/api/monitor/servers/alpha/status", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	st := body["status"].(map[string]any)
	assert.Equal(t, "alpha", st["hostname"])
	assert.Equal(t, "de_inferno", st["map"])
	assert.EqualValues(t, 12, st["max_players"])
	players := st["players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, "Eve", players[0].(map[string]any)["name"])

	rec, _ = f.do(t, http.MethodGet, "/api/monitor/servers/ghost/status", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteErrors(t *testing.T) {
	f := newFixture(t, nil)
	control := f.token(t, db.PermissionControl)

	rec, _ := f.do(t, http.MethodPost, "/api/control/servers/ghost/execute", control, executeRequest{Command: "status"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/api/control/servers/locked/execute", control, executeRequest{Command: "status"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["error"], "authentication failed")

	rec, _ = f.do(t, http.MethodPost, "/api/control/servers/alpha/execute", control, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/monitor/history?limit=-1", control, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.rcon.Close()
	f.manager.CloseAll(context.Background())
	rec, _ = f.do(t, http.MethodPost, "/api/control/servers/alpha/execute", control, executeRequest{Command: "status"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuthDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		app := cfg.GetApplicationData()
		app.Security.AuthDisabled = true
		cfg.SetApplicationData(app)
	})

	rec, _ := f.do(t, http.MethodGet, "/api/configure/tokens", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenManagement(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.token(t, db.PermissionConfigure)

	rec, body := f.do(t, http.MethodPost, "/api/configure/tokens", admin, createTokenRequest{Name: "ci", Permission: "monitor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	secret := body["token"].(string)

	rec, _ = f.do(t, http.MethodGet, "/api/monitor/servers", secret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/configure/tokens", admin, createTokenRequest{Name: "bad", Permission: "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/configure/tokens", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["tokens"], 2)

	rec, _ = f.do(t, http.MethodDelete, "/api/configure/tokens/ci", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/configure/tokens/ci", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/monitor/servers", secret, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfigureServers(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.token(t, db.PermissionConfigure)

	rec, body := f.do(t, http.MethodGet, "/api/configure/config", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	servers := body["rcon_data"].(map[string]any)["servers"].([]any)
	assert.Equal(t, redacted, servers[0].(map[string]any)["password"])

	rec, _ = f.do(t, http.MethodPost, "/api/configure/servers", admin, config.ServerTarget{
		Name: "beta", Address: f.rcon.Addr(), Password: "secret", Enabled: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, f.manager.Names(), "beta")

	_, err := f.manager.Execute(context.Background(), "beta", "hi")
	require.NoError(t, err)

	rec, _ = f.do(t, http.MethodPost, "/api/configure/servers", admin, config.ServerTarget{
		Name: "beta", Address: f.rcon.Addr(), Enabled: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	target, _ := f.cfg.Target("beta")
	assert.Equal(t, "secret", target.Password, "empty password keeps the stored one")

	rec, _ = f.do(t, http.MethodPost, "/api/configure/servers", admin, config.ServerTarget{
		Name: "gamma", Address: "no-port", Enabled: true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, found := f.cfg.Target("gamma")
	assert.False(t, found, "invalid change is rolled back")

	rec, _ = f.do(t, http.MethodDelete, "/api/configure/servers/beta", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, f.manager.Names(), "beta")

	rec, _ = f.do(t, http.MethodDelete, "/api/configure/servers/beta", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reloaded, err := config.Load(filepath.Dir(f.cfg.Path()))
	require.NoError(t, err)
	_, found = reloaded.Target("beta")
	assert.False(t, found)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.manager.Execute(context.Background(), "alpha", "status")
	require.NoError(t, err)

	rec, _ := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rcon_commands_total{server="alpha",status="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "rcon_sessions_connected 1")
}

func TestIPWhitelist(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		app := cfg.GetApplicationData()
		app.Security.IPWhitelist = []string{"10.0.0.0/8"}
		cfg.SetApplicationData(app)
	})

	rec, _ := f.do(t, http.MethodGet, "/api/public/ping", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	allowed := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	allowed.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, allowed)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Now()

	assert.True(t, rl.Allow("a", now))
	assert.True(t, rl.Allow("a", now))
	assert.False(t, rl.Allow("a", now))
	assert.True(t, rl.Allow("b", now), "buckets are per client")
	assert.True(t, rl.Allow("a", now.Add(time.Second)))

	assert.True(t, NewRateLimiter(0).Allow("a", now))
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer  abc"))
	assert.Empty(t, extractBearerToken("Basic abc"))
	assert.Empty(t, extractBearerToken(""))
}
