package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/config"
	"github.com/AdamBeresnev/fpv-bracket/internal/live"
	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/AdamBeresnev/fpv-bracket/internal/store"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "sqlite3", driver)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}
	return database
}

type testClient struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()

	database := setupTestDB(t)
	t.Cleanup(func() { database.Close() })

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(database.DB, 0)

	registry := prometheus.NewRegistry()
	deps := service.Deps{
		DB:      database,
		Store:   store.NewTournamentStore(database),
		Locks:   service.NewLocks(),
		Metrics: service.NewMetrics(registry),
	}

	cfg := config.Default()
	cfg.RateLimit = 1000
	cfg.RateBurst = 1000
	srv := httptest.NewServer(newRouter(&cfg, deps, sessionManager, live.NewHub(nil), registry))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{t: t, srv: srv, client: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (c *testClient) do(method, path string, body any) (int, []byte) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out
}

func (c *testClient) mustDo(method, path string, body any, wantStatus int, dst any) {
	c.t.Helper()

	status, out := c.do(method, path, body)
	require.Equal(c.t, wantStatus, status, "%s %s: %s", method, path, out)
	if dst != nil {
		require.NoError(c.t, json.Unmarshal(out, dst))
	}
}

func TestTournamentFlowOverHTTP(t *testing.T) {
	c := newTestClient(t)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	c.mustDo(http.MethodPost, "/tournaments", service.TournamentInput{
		Name:           "Night Race",
		Discipline:     bracket.DroneIndividual,
		TimeLimit:      120,
		RegulationLaps: 3,
		ScoringMode:    bracket.ModeGroup4,
	}, http.StatusCreated, &created)
	base := "/tournaments/" + created.ID.String()

	c.mustDo(http.MethodPost, base+"/entrants/demo", map[string]any{"count": 4}, http.StatusCreated, nil)
	c.mustDo(http.MethodPost, base+"/qualification/start", nil, http.StatusNoContent, nil)

	var entrants []bracket.Entrant
	c.mustDo(http.MethodGet, base+"/entrants", nil, http.StatusOK, &entrants)
	require.Len(t, entrants, 4)

	runs := make([]service.RunInput, len(entrants))
	for i, e := range entrants {
		runs[i] = service.RunInput{EntrantID: e.ID, Outcome: bracket.OutcomeFinished, TimeSeconds: 30 + float64(i), Laps: 3}
	}
	c.mustDo(http.MethodPost, base+"/qualification", runs, http.StatusNoContent, nil)

	var ranked []service.RankedEntrant
	c.mustDo(http.MethodGet, base+"/qualification", nil, http.StatusOK, &ranked)
	require.Len(t, ranked, 4)
	assert.Equal(t, entrants[0].ID, ranked[0].EntrantID)

	var stage struct {
		ID uuid.UUID `json:"id"`
	}
	c.mustDo(http.MethodPost, base+"/stages", nil, http.StatusCreated, &stage)
	stagePath := "/stages/" + stage.ID.String()

	status, out := c.do(http.MethodPost, base+"/finish", nil)
	assert.Equal(t, http.StatusConflict, status, "the final still misses heats")
	assert.Contains(t, string(out), "missing")

	for heat := 1; heat <= 3; heat++ {
		draft := stagePath + "/groups/1/heats/" + strconv.Itoa(heat) + "/tracks/1/draft"
		for i, e := range entrants {
			c.mustDo(http.MethodPost, draft, service.RunInput{
				EntrantID: e.ID, Outcome: bracket.OutcomeFinished, TimeSeconds: 40 + float64(i), Laps: 3,
			}, http.StatusOK, nil)
		}
		var pending []service.RunInput
		c.mustDo(http.MethodGet, draft, nil, http.StatusOK, &pending)
		require.Len(t, pending, 4)

		c.mustDo(http.MethodPost, draft+"/submit", nil, http.StatusNoContent, nil)
		c.mustDo(http.MethodGet, draft, nil, http.StatusOK, &pending)
		assert.Empty(t, pending, "a submitted draft is cleared")
	}

	var completeness completenessResponse
	c.mustDo(http.MethodGet, stagePath+"/completeness", nil, http.StatusOK, &completeness)
	assert.True(t, completeness.Complete)
	assert.Empty(t, completeness.Missing)

	var advanced struct {
		ID uuid.UUID `json:"id"`
	}
	c.mustDo(http.MethodPost, base+"/advance", nil, http.StatusOK, &advanced)
	assert.Equal(t, stage.ID, advanced.ID, "advancing the final keeps it open")
	c.mustDo(http.MethodPost, base+"/finish", nil, http.StatusNoContent, nil)

	var placed []service.PlacedEntrant
	c.mustDo(http.MethodGet, base+"/standings", nil, http.StatusOK, &placed)
	require.Len(t, placed, 4)
	require.NotNil(t, placed[0].Place)
	assert.Equal(t, 1, *placed[0].Place)
	assert.Equal(t, entrants[0].ID, placed[0].EntrantID)
	assert.Equal(t, 10, placed[0].Total, "three wins plus the final bonus")

	resp, err := c.client.Get(c.srv.URL + base + "/export.xlsx")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	status, out = c.do(http.MethodGet, stagePath+"/export.csv", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(string(out), "\ufeffGroup,Rank"))

	status, out = c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(out), `fpv_heats_recorded_total{discipline="drone"} 3`)
}

func TestErrorResponses(t *testing.T) {
	c := newTestClient(t)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	c.mustDo(http.MethodPost, "/tournaments", service.TournamentInput{
		Name: "Cup", Discipline: bracket.SimIndividual, RegulationLaps: 2, ScoringMode: bracket.ModeGroup8,
	}, http.StatusCreated, &created)

	testCases := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{name: "bad tournament id", method: http.MethodGet, path: "/tournaments/nope", wantStatus: http.StatusBadRequest},
		{name: "unknown tournament", method: http.MethodGet, path: "/tournaments/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "invalid tournament", method: http.MethodPost, path: "/tournaments", body: service.TournamentInput{Name: ""}, wantStatus: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/tournaments", body: map[string]any{"title": "x"}, wantStatus: http.StatusBadRequest},
		{name: "open stage during setup", method: http.MethodPost, path: "/tournaments/" + created.ID.String() + "/stages", wantStatus: http.StatusConflict},
		{name: "rollback during setup", method: http.MethodPost, path: "/tournaments/" + created.ID.String() + "/rollback", wantStatus: http.StatusConflict},
		{name: "unknown stage", method: http.MethodGet, path: "/stages/" + uuid.NewString() + "/standings", wantStatus: http.StatusNotFound},
		{name: "bad group number", method: http.MethodGet, path: "/stages/" + uuid.NewString() + "/groups/zero/standings", wantStatus: http.StatusBadRequest},
		{name: "empty draft", method: http.MethodPost, path: "/stages/" + uuid.NewString() + "/groups/1/heats/1/tracks/1/draft/submit", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, out := c.do(tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, status, string(out))

			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(out, &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestDraftReplacesEntrantRun(t *testing.T) {
	c := newTestClient(t)

	draft := "/stages/" + uuid.NewString() + "/groups/2/heats/1/tracks/2/draft"
	entrant := uuid.New()

	c.mustDo(http.MethodPost, draft, service.RunInput{EntrantID: entrant, Outcome: bracket.OutcomeFinished, TimeSeconds: 50, Laps: 2}, http.StatusOK, nil)
	var runs []service.RunInput
	c.mustDo(http.MethodPost, draft, service.RunInput{EntrantID: entrant, Outcome: bracket.OutcomeDNF, Laps: 1}, http.StatusOK, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, bracket.OutcomeDNF, runs[0].Outcome)

	c.mustDo(http.MethodDelete, draft, nil, http.StatusNoContent, nil)
	c.mustDo(http.MethodGet, draft, nil, http.StatusOK, &runs)
	assert.Empty(t, runs)

	status, _ := c.do(http.MethodPost, draft, service.RunInput{Outcome: bracket.OutcomeFinished})
	assert.Equal(t, http.StatusBadRequest, status, "entrant_id is required")
}
