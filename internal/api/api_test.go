package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"listing-radar/internal/config"
	"listing-radar/internal/listing"
	"listing-radar/internal/metrics"
	"listing-radar/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	gin.SetMode(gin.TestMode)
}

type queueStub struct {
	got  []listing.Observation
	full bool
}

func (q *queueStub) TryEnqueue(obs listing.Observation) error {
	if q.full {
		return context.DeadlineExceeded
	}
	q.got = append(q.got, obs)
	return nil
}

func newTestServer(t *testing.T) (*Server, storage.Store, *queueStub) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "api.db") + "?_pragma=busy_timeout(5000)"
	store, err := storage.Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	queue := &queueStub{}
	h := NewHandlers(store, store, queue, metrics.New(), 10)
	return NewServer(config.APIConfig{Addr: ":0"}, h, zerolog.Nop()), store, queue
}

func put(t *testing.T, store storage.Store, id, category, brand string, velocity float64, ev *storage.Evaluation) {
	t.Helper()
	seen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	_, _, err := store.UpsertListing(context.Background(), id, func(*storage.Listing) (storage.Listing, error) {
		return storage.Listing{
			ID: id, Title: brand + " " + category, Category: category, Brand: brand, Tier: "TIER_1",
			ClusterKey: strings.ToLower(brand), Price: decimal.NewFromInt(1000), Currency: "TRY",
			NormalizedPrice: 1000, FirstSeen: seen, LastSeen: seen, InitialPrice: 1000,
			Velocity: velocity, Active: true,
		}, nil
	})
	require.NoError(t, err)
	if ev != nil {
		require.NoError(t, store.RecordEvaluation(context.Background(), id, ev))
	}
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func seedMarket(t *testing.T, store storage.Store) {
	put(t, store, "gem", "Monitor", "Asus", 0.02, &storage.Evaluation{Score: 93, Label: "Hidden Gem", Flags: []string{}})
	put(t, store, "good", "Monitor", "Msi", 0.01, &storage.Evaluation{Score: 74, Label: "Good Deal", Flags: []string{}})
	put(t, store, "toxic", "Graphics Card", "Msi", 0.0, &storage.Evaluation{Score: 20, Label: "Toxic", Flags: []string{"EXTREME_OUTLIER"}})
	put(t, store, "new", "Mouse", "Razer", 0.0, nil)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListListingsSortedAndFiltered(t *testing.T) {
	s, store, _ := newTestServer(t)
	seedMarket(t, store)

	var resp struct {
		Data  []storage.Listing `json:"data"`
		Count int               `json:"count"`
	}
	rec := do(t, s, http.MethodGet, "/api/v1/listings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.Count)
	require.Equal(t, []string{"gem", "good", "toxic", "new"}, ids(resp.Data))

	rec = do(t, s, http.MethodGet, "/api/v1/listings?actionable=true", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"gem", "good"}, ids(resp.Data))

	rec = do(t, s, http.MethodGet, "/api/v1/listings?brand=Msi&category=Monitor", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"good"}, ids(resp.Data))

	rec = do(t, s, http.MethodGet, "/api/v1/listings?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"gem"}, ids(resp.Data))

	rec = do(t, s, http.MethodGet, "/api/v1/listings?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetListing(t *testing.T) {
	s, store, _ := newTestServer(t)
	seedMarket(t, store)

	rec := do(t, s, http.MethodGet, "/api/v1/listings/gem", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data storage.Listing `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Evaluation)
	require.Equal(t, 93, resp.Data.Evaluation.Score)

	rec = do(t, s, http.MethodGet, "/api/v1/listings/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeactivateListing(t *testing.T) {
	s, store, _ := newTestServer(t)
	seedMarket(t, store)

	rec := do(t, s, http.MethodDelete, "/api/v1/listings/toxic", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	var resp struct {
		Data  []storage.Listing `json:"data"`
		Count int               `json:"count"`
	}
	rec = do(t, s, http.MethodGet, "/api/v1/listings", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"gem", "good", "new"}, ids(resp.Data))

	rec = do(t, s, http.MethodGet, "/api/v1/listings?include_inactive=true", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.Count)

	rec = do(t, s, http.MethodDelete, "/api/v1/listings/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPulseEndpoint(t *testing.T) {
	s, store, _ := newTestServer(t)
	seedMarket(t, store)

	rec := do(t, s, http.MethodGet, "/api/v1/pulse", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data Pulse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.Data.Active)
	require.Equal(t, 1, resp.Data.HiddenGems)
	require.Equal(t, 1, resp.Data.GoodDeals)
	require.Equal(t, 1, resp.Data.Labels["Unscored"])
	require.InDelta(t, 0.75, resp.Data.AvgVelocityPct, 1e-9)
	require.Equal(t, MoodActive, resp.Data.Mood)
	require.Equal(t, []string{"Graphics Card", "Monitor", "Mouse"}, resp.Data.Categories)
	require.Equal(t, []string{"Asus", "Msi", "Razer"}, resp.Data.Brands)
}

func TestMood(t *testing.T) {
	require.Equal(t, MoodHot, Mood(1.01))
	require.Equal(t, MoodActive, Mood(1.0))
	require.Equal(t, MoodActive, Mood(0.51))
	require.Equal(t, MoodCalm, Mood(0.5))
	require.Equal(t, MoodCalm, BuildPulse(nil).Mood)
}

func TestSubmitObservation(t *testing.T) {
	s, _, queue := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/observations", `{"id":"9","title":"Asus TUF 165hz","price":"7999","currency":"try"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.got, 1)
	require.Equal(t, "TRY", queue.got[0].Currency)

	rec = do(t, s, http.MethodPost, "/api/v1/observations", `{"id":"10","title":"Asus","price":-5,"currency":"TRY"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/observations", `nope`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	queue.full = true
	rec = do(t, s, http.MethodPost, "/api/v1/observations", `{"id":"11","title":"Asus","price":5,"currency":"TRY"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecentAlerts(t *testing.T) {
	s, store, _ := newTestServer(t)
	_, err := store.InsertAlert(context.Background(), storage.AlertRecord{
		ID: "a-1", ListingID: "gem", Label: "Hidden Gem", Score: 93,
		Flags: []string{}, Channels: []string{"discord"}, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"listing_id":"gem"`)
}

func ids(listings []storage.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}
