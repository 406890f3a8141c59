package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/engine"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
	"github.com/talgya/mini-ecosystem/internal/resources"
	"github.com/talgya/mini-ecosystem/internal/traces"
	"github.com/talgya/mini-ecosystem/internal/world"
)

const adminKey = "secret"

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	eco := world.Ecosystem{
		Zones: []world.BiomeZone{{ID: "z", Type: world.BiomeForest, Center: geom.Vec{X: 300, Y: 300}, Radius: 100, Fertility: 80}},
		Elements: []world.BiomeElement{
			{ID: "oak", Type: world.ElementTree, Position: geom.Vec{X: 310, Y: 300}, Health: 90},
			{ID: "stone", Type: world.ElementRock, Position: geom.Vec{X: 900, Y: 600}, Health: 100},
		},
		Resources: []world.Resource{
			{ID: "berries", Type: world.ResourceFood, Position: geom.Vec{X: 500, Y: 400}, Amount: 60, MaxAmount: 120, RegenerationRate: 0.3},
			{ID: "spring", Type: world.ResourceWater, Position: geom.Vec{X: 100, Y: 100}, Amount: 90, MaxAmount: 100, RegenerationRate: 0.5},
		},
	}
	eng := engine.NewEngine(epoch)
	sim := engine.NewSimulation(eco, engine.DefaultOptions(), entropy.Fixed(0.25), eng.Now)
	sim.Spawner = agents.NewSpawner(nil, entropy.Fixed(0.25), eng.Now)
	sim.Start([]agents.Entity{{
		ID:            "sprite",
		Name:          "Sprite",
		Species:       "Moss Sprite",
		Personality:   agents.Personality{Traits: []string{agents.TraitCalm, agents.TraitNurturing}, Energy: 60},
		Position:      geom.Vec{X: 505, Y: 400},
		Status:        agents.StatusResting,
		Relationships: []string{},
		CreatedAt:     epoch,
	}})

	s := &Server{Sim: sim, Eng: eng, AdminKey: adminKey, SpawnPerMinute: 1}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestStatus(t *testing.T) {
	_, ts := testServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[struct {
		Speed float64         `json:"speed"`
		Stats engine.SimStats `json:"stats"`
	}](t, resp)
	if got.Speed != 1 || got.Stats.Entities != 1 || got.Stats.Resources != 2 || got.Stats.Zones != 1 {
		t.Errorf("status = %+v", got)
	}
}

func TestEntityRoutes(t *testing.T) {
	_, ts := testServer(t)

	list := decode[[]agents.Entity](t, do(t, http.MethodGet, ts.URL+"/api/v1/entities", "", nil))
	if len(list) != 1 || list[0].ID != "sprite" {
		t.Fatalf("entities = %+v", list)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/entities?status=flying", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", resp.StatusCode)
	}
	building := decode[[]agents.Entity](t, do(t, http.MethodGet, ts.URL+"/api/v1/entities?status=building", "", nil))
	if len(building) != 0 {
		t.Errorf("building entities = %d, want 0", len(building))
	}

	one := decode[agents.Entity](t, do(t, http.MethodGet, ts.URL+"/api/v1/entity/sprite", "", nil))
	if one.Name != "Sprite" {
		t.Errorf("entity = %+v", one)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/entity/nobody", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing entity = %d, want 404", resp.StatusCode)
	}

	if resp := do(t, http.MethodDelete, ts.URL+"/api/v1/entity/sprite", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated delete = %d, want 401", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/api/v1/entity/sprite", adminKey, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/api/v1/entity/sprite", adminKey, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", resp.StatusCode)
	}
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	s, _ := testServer(t)
	s.AdminKey = ""
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/speed", "anything", map[string]float64{"speed": 2})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestWorldQueries(t *testing.T) {
	_, ts := testServer(t)

	zones := decode[[]world.BiomeZone](t, do(t, http.MethodGet, ts.URL+"/api/v1/zones", "", nil))
	if len(zones) != 1 {
		t.Errorf("zones = %d, want 1", len(zones))
	}

	near := decode[[]world.BiomeElement](t, do(t, http.MethodGet, ts.URL+"/api/v1/elements?x=300&y=300&radius=20", "", nil))
	if len(near) != 1 || near[0].ID != "oak" {
		t.Errorf("elements near = %+v", near)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"berries", "spring"}},
		{"?type=water", []string{"spring"}},
		{"?x=500&y=400&radius=10", []string{"berries"}},
		{"?x=500&y=400&radius=1000&type=water", []string{"spring"}},
	}
	for _, tt := range tests {
		t.Run("resources"+tt.query, func(t *testing.T) {
			got := decode[[]world.Resource](t, do(t, http.MethodGet, ts.URL+"/api/v1/resources"+tt.query, "", nil))
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("resources = %v, want %v", ids, tt.want)
			}
		})
	}

	for _, q := range []string{"?x=1&y=2", "?x=a&y=2&radius=3", "?x=1&y=2&radius=-1"} {
		if resp := do(t, http.MethodGet, ts.URL+"/api/v1/resources"+q, "", nil); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("resources%s = %d, want 400", q, resp.StatusCode)
		}
	}

	scarcity := decode[map[world.ResourceType]float64](t, do(t, http.MethodGet, ts.URL+"/api/v1/scarcity", "", nil))
	if scarcity[world.ResourceFood] != 0.5 {
		t.Errorf("food scarcity = %f, want 0.5", scarcity[world.ResourceFood])
	}
}

func TestTraceQueries(t *testing.T) {
	s, ts := testServer(t)
	sprite, _ := s.Sim.Behavior.Entity("sprite")
	s.Sim.Traces.CreateTrace(traces.Footprint, geom.Vec{X: 505, Y: 400}, sprite, nil)
	s.Sim.Traces.CreateTrace(traces.Scent, geom.Vec{X: 100, Y: 100}, sprite, nil)

	byEntity := decode[[]traces.Trace](t, do(t, http.MethodGet, ts.URL+"/api/v1/traces?entity=sprite", "", nil))
	if len(byEntity) != 2 {
		t.Errorf("traces by entity = %d, want 2", len(byEntity))
	}
	inArea := decode[[]traces.Trace](t, do(t, http.MethodGet, ts.URL+"/api/v1/traces?x=500&y=400&radius=20", "", nil))
	if len(inArea) != 1 || inArea[0].Type != traces.Footprint {
		t.Errorf("traces in area = %+v", inArea)
	}
}

func TestSpawnIsRateLimited(t *testing.T) {
	s, ts := testServer(t)

	body := map[string]string{"donor_email": "donor@example.com"}
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/spawn", adminKey, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("spawn = %d, want 201", resp.StatusCode)
	}
	e := decode[agents.Entity](t, resp)
	if e.DonorEmail != "donor@example.com" || e.Species != "Digital Being" {
		t.Errorf("spawned = %+v", e)
	}
	if s.Sim.Behavior.Len() != 2 {
		t.Errorf("tracked = %d, want 2", s.Sim.Behavior.Len())
	}

	resp = do(t, http.MethodPost, ts.URL+"/api/v1/spawn", adminKey, body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second spawn = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestSpawnRejectsBadEmail(t *testing.T) {
	_, ts := testServer(t)
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/spawn", adminKey, map[string]string{"donor_email": "not-an-email"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHarvestAndContribute(t *testing.T) {
	s, ts := testServer(t)

	res := decode[resources.InteractionResult](t, do(t, http.MethodPost, ts.URL+"/api/v1/harvest", adminKey,
		map[string]any{"entity_id": "sprite", "resource_id": "berries", "amount": 10}))
	if !res.Success || res.AmountObtained != 10 {
		t.Errorf("harvest = %+v", res)
	}
	berries, _ := s.Sim.Resources.Resource("berries")
	if berries.Amount != 50 {
		t.Errorf("berries = %f, want 50", berries.Amount)
	}

	res = decode[resources.InteractionResult](t, do(t, http.MethodPost, ts.URL+"/api/v1/contribute", adminKey,
		map[string]any{"entity_id": "sprite", "resource_id": "berries", "kind": "restore"}))
	if !res.Success {
		t.Errorf("contribute = %+v", res)
	}

	// Out of range: failure, not an HTTP error.
	res = decode[resources.InteractionResult](t, do(t, http.MethodPost, ts.URL+"/api/v1/harvest", adminKey,
		map[string]any{"entity_id": "sprite", "resource_id": "spring", "amount": 10}))
	if res.Success {
		t.Error("harvest of distant spring succeeded")
	}

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/harvest", adminKey,
		map[string]any{"entity_id": "ghost", "resource_id": "berries", "amount": 10})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown entity = %d, want 404", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, ts.URL+"/api/v1/harvest", adminKey,
		map[string]any{"entity_id": "sprite", "resource_id": "berries", "amount": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero amount = %d, want 400", resp.StatusCode)
	}
}

func TestSpeed(t *testing.T) {
	s, ts := testServer(t)

	got := decode[map[string]float64](t, do(t, http.MethodPost, ts.URL+"/api/v1/speed", adminKey, map[string]float64{"speed": 4}))
	if got["speed"] != 4 || s.Eng.Speed() != 4 {
		t.Errorf("speed = %v, engine %f", got, s.Eng.Speed())
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/speed", adminKey, map[string]float64{"speed": 5000}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("excessive speed = %d, want 400", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/speed", "wrong", map[string]float64{"speed": 2}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", resp.StatusCode)
	}
}

func TestEvents(t *testing.T) {
	s, ts := testServer(t)
	s.Sim.RemoveEntity("sprite")

	events := decode[[]engine.Event](t, do(t, http.MethodGet, ts.URL+"/api/v1/events?limit=5", "", nil))
	if len(events) != 1 || events[0].Category != engine.EventRemove {
		t.Errorf("events = %+v", events)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/events?limit=zero", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/events?source=db", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("db events without db = %d, want 404", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	s, _ := testServer(t)
	s.AllowedOrigins = []string{"https://eco.example.com"}
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://eco.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://eco.example.com" {
		t.Errorf("preflight = %d %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin was allowed")
	}
}

func TestStream(t *testing.T) {
	s, ts := testServer(t)
	s.Sim.RemoveEntity("sprite")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var catchUp engine.Event
	if err := conn.ReadJSON(&catchUp); err != nil {
		t.Fatal(err)
	}
	if catchUp.Category != engine.EventRemove || catchUp.EntityID != "sprite" {
		t.Errorf("catch-up = %+v", catchUp)
	}

	s.Sim.AddEntity(agents.Entity{ID: "newcomer", Name: "Newcomer", Species: "Glow Moth", Status: agents.StatusExploring})

	var live engine.Event
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatal(err)
	}
	if live.Category != engine.EventSpawn || live.EntityID != "newcomer" {
		t.Errorf("live = %+v", live)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := epoch
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("first two requests refused")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("third request allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other client refused")
	}
	now = now.Add(30 * time.Second)
	if got := rl.RetryAfter("1.2.3.4"); got != 31 {
		t.Errorf("RetryAfter = %d, want 31", got)
	}
	now = now.Add(30 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("request refused after window reset")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, xff, want string
	}{
		{"10.0.0.1:5555", "", "10.0.0.1"},
		{"[::1]:8080", "", "::1"},
		{"10.0.0.1:5555", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if tt.xff != "" {
			r.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.xff, got, tt.want)
		}
	}
}
