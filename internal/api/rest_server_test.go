package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tile-movement/internal/auth"
	"github.com/annel0/tile-movement/internal/movement"
	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

type fakeSessions struct {
	kicked []world.EntityID
}

func (f *fakeSessions) Kick(id world.EntityID) error {
	if id == 404 {
		return errors.New("entity is not online")
	}
	f.kicked = append(f.kicked, id)
	return nil
}

func (f *fakeSessions) OnlineCount() int { return 2 }

type fixture struct {
	server   *RestServer
	sessions *fakeSessions
	issuer   *auth.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	maps := world.NewMapSet(world.NewTileMap(1, 32, 32), world.NewTileMap(2, 32, 32))
	sched := movement.NewScheduler(maps, movement.OutboxFunc(func(world.EntityID, protocol.ServerPacket) {}), movement.Options{})
	require.NoError(t, sched.Spawn(1, "alice", world.Position{Map: 1, X: 3, Y: 3}, world.South))
	require.NoError(t, sched.Spawn(2, "bob", world.Position{Map: 2, X: 4, Y: 4}, world.North))
	sched.Enqueue(1, protocol.MoveRequest{ID: 0, Direction: world.East})

	issuer, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Minute)
	require.NoError(t, err)
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)

	sessions := &fakeSessions{}
	reg := prometheus.NewRegistry()
	rs, err := NewRestServer(Config{
		World:      sched,
		Sessions:   sessions,
		Issuer:     issuer,
		Admin:      auth.AdminCredentials{Username: "admin", PasswordHash: hash},
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)
	return &fixture{server: rs, sessions: sessions, issuer: issuer}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entities":2`)

	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin_api_http_request_duration_seconds")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/stats", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/stats", "garbage", "").Code)
}

func TestLoginAndStats(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	rec = f.do(t, http.MethodGet, "/api/stats", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, WorldStats{Entities: 2, Online: 2, QueuedMoves: 1}, resp.Data.World)
	assert.NotZero(t, resp.Data.Process.Goroutines)
}

func TestEntities(t *testing.T) {
	f := newFixture(t)
	token, err := f.issuer.Issue("viewer", false)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/entities?map=2", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []movement.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "bob", list.Data[0].Name)

	rec = f.do(t, http.MethodGet, "/api/entities/1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"alice"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/entities/77", token, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/entities/abc", token, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/entities?map=x", token, "").Code)
}

func TestKickRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	viewer, err := f.issuer.Issue("viewer", false)
	require.NoError(t, err)
	admin, err := f.issuer.Issue("admin", true)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/entities/1", viewer, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/entities/1", admin, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/entities/404", admin, "").Code)
	assert.Equal(t, []world.EntityID{1}, f.sessions.kicked)
}
