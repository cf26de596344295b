package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctfledger/internal/domain"
	"github.com/alanyoungcy/ctfledger/internal/server/handler"
	"github.com/alanyoungcy/ctfledger/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := NewServer(Config{Port: 0}, Handlers{
		Health:       handler.NewHealthHandler(logger),
		OpenInterest: handler.NewOpenInterestHandler(store.OpenInterest(), nil, logger),
		Positions:    handler.NewPositionHandler(store.UserPositions(), logger),
		Activity:     handler.NewActivityHandler(store.Activity(), logger),
	}, nil, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]any
	status := getJSON(t, ts.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ctfledger", body["service"])
}

func TestGlobalOpenInterestEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.OpenInterest().SetGlobal(ctx, domain.GlobalOpenInterest{
		Amount: big.NewInt(123456),
	}))

	var body struct {
		ConditionID string `json:"condition_id"`
		Amount      string `json:"amount"`
	}
	status := getJSON(t, ts.URL+"/api/openinterest", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "123456", body.Amount)
	assert.Empty(t, body.ConditionID)
}

func TestMarketOpenInterestEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.OpenInterest().SetMarket(ctx, domain.MarketOpenInterest{
		ConditionID: "0xc1", Amount: big.NewInt(777),
	}))

	var body struct {
		ConditionID string `json:"condition_id"`
		Amount      string `json:"amount"`
	}
	status := getJSON(t, ts.URL+"/api/openinterest/0xc1", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0xc1", body.ConditionID)
	assert.Equal(t, "777", body.Amount)

	// An unknown condition materializes as a zero row rather than a 404.
	status = getJSON(t, ts.URL+"/api/openinterest/0xmissing", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0", body.Amount)
}

func TestListMarketsEndpointWinsOverWildcard(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.OpenInterest().SetMarket(ctx, domain.MarketOpenInterest{
		ConditionID: "0xb", Amount: big.NewInt(2),
	}))
	require.NoError(t, store.OpenInterest().SetMarket(ctx, domain.MarketOpenInterest{
		ConditionID: "0xa", Amount: big.NewInt(1),
	}))

	var body struct {
		Markets []struct {
			ConditionID string `json:"condition_id"`
			Amount      string `json:"amount"`
		} `json:"markets"`
	}
	status := getJSON(t, ts.URL+"/api/openinterest/markets", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Markets, 2)
	assert.Equal(t, "0xa", body.Markets[0].ConditionID)
	assert.Equal(t, "0xb", body.Markets[1].ConditionID)
}

func TestListPositionsEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.UserPositions().Set(ctx, domain.UserPosition{
		Holder:     "0xalice",
		PositionID: "42",
		Amount:     big.NewInt(100),
		AvgPrice:   big.NewInt(500000),
	}))

	var body struct {
		Holder    string `json:"holder"`
		Positions []struct {
			PositionID string `json:"position_id"`
			Amount     string `json:"amount"`
			AvgPrice   string `json:"avg_price"`
		} `json:"positions"`
	}
	// The holder query parameter is case-insensitive.
	status := getJSON(t, ts.URL+"/api/positions?holder=0xALICE", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0xalice", body.Holder)
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "42", body.Positions[0].PositionID)
	assert.Equal(t, "100", body.Positions[0].Amount)
	assert.Equal(t, "500000", body.Positions[0].AvgPrice)
}

func TestListPositionsRequiresHolder(t *testing.T) {
	ts, _ := newTestServer(t)
	status := getJSON(t, ts.URL+"/api/positions", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestActivityEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Activity().InsertSplit(ctx, domain.Split{
			ID:          domain.ActivityID("0xtx", uint(i)),
			Timestamp:   time.Unix(int64(1700000000+i), 0),
			Stakeholder: "0xalice",
			ConditionID: "0xc1",
			Amount:      big.NewInt(int64(i + 1)),
		}))
	}

	var body struct {
		Activity []struct {
			Kind      string `json:"kind"`
			Timestamp int64  `json:"timestamp"`
			Amount    string `json:"amount"`
		} `json:"activity"`
	}
	status := getJSON(t, ts.URL+"/api/activity?limit=2", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Activity, 2)
	assert.Equal(t, int64(1700000002), body.Activity[0].Timestamp)
	assert.Equal(t, "3", body.Activity[0].Amount)
	assert.Equal(t, "split", body.Activity[0].Kind)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
