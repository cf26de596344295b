package goldsky

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

func subgraphStub(t *testing.T, data string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Query)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":` + data + `}`))
	}))
}

func TestFetchEventsOrdersAndFilters(t *testing.T) {
	// Three collections, deliberately out of order across blocks, with one
	// event behind the cursor at (10, 2).
	srv := subgraphStub(t, `{
		"conditionPreparations": [
			{"transactionHash":"0xa","logIndex":"5","blockNumber":"11","timestamp":"1700000100",
			 "address":"0xCTF","conditionId":"0xc1","oracle":"0xo","questionId":"0xq","outcomeSlotCount":"2"}
		],
		"positionSplits": [
			{"transactionHash":"0xb","logIndex":"2","blockNumber":"10","timestamp":"1700000000",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"100"},
			{"transactionHash":"0xc","logIndex":"1","blockNumber":"10","timestamp":"1700000000",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"50"}
		],
		"positionsMerges": [
			{"transactionHash":"0xd","logIndex":"9","blockNumber":"9","timestamp":"1699999900",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"25"}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	events, err := client.FetchEvents(context.Background(), 10, 2, 1000)
	require.NoError(t, err)

	// The merge at block 9 and the split at (10, 1) fall behind the cursor.
	require.Len(t, events, 2)

	split, ok := events[0].(domain.PositionSplitEvent)
	require.True(t, ok, "first event was %T", events[0])
	assert.Equal(t, uint64(10), split.Meta.BlockNumber)
	assert.Equal(t, uint(2), split.Meta.LogIndex)
	assert.Zero(t, split.Amount.Cmp(big.NewInt(100)))

	prep, ok := events[1].(domain.ConditionPreparationEvent)
	require.True(t, ok, "second event was %T", events[1])
	assert.Equal(t, uint64(11), prep.Meta.BlockNumber)
	assert.Equal(t, 2, prep.OutcomeSlotCount)
	assert.Equal(t, "0xc1", prep.ConditionID)
}

func TestFetchEventsConvertsNegRiskEvents(t *testing.T) {
	srv := subgraphStub(t, `{
		"marketPrepareds": [
			{"transactionHash":"0xa","logIndex":"1","blockNumber":"5","timestamp":"1700000000",
			 "address":"0xNRA","marketId":"0xm1","feeBips":"200"}
		],
		"questionPrepareds": [
			{"transactionHash":"0xa","logIndex":"2","blockNumber":"5","timestamp":"1700000000",
			 "address":"0xNRA","marketId":"0xm1","questionId":"0xq1","questionIndex":"0"}
		],
		"positionsConverteds": [
			{"transactionHash":"0xb","logIndex":"3","blockNumber":"6","timestamp":"1700000100",
			 "address":"0xNRA","stakeholder":"0xs","marketId":"0xm1","indexSet":"3","amount":"1000"}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	events, err := client.FetchEvents(context.Background(), 0, 0, 1000)
	require.NoError(t, err)
	require.Len(t, events, 3)

	market, ok := events[0].(domain.MarketPreparedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(200), market.FeeBps)

	question, ok := events[1].(domain.QuestionPreparedEvent)
	require.True(t, ok)
	assert.Zero(t, question.QuestionIndex)

	conv, ok := events[2].(domain.PositionsConvertedEvent)
	require.True(t, ok)
	assert.Zero(t, conv.IndexSet.Cmp(big.NewInt(3)))
	assert.Zero(t, conv.Amount.Cmp(big.NewInt(1000)))
}

func TestFetchEventsCapsAtTruncatedCollection(t *testing.T) {
	// The splits page is full at three entries, so blocks at and beyond its
	// last block (3) may be incomplete. The lone marketPrepared at block
	// 5000 must not pull the batch past the gap.
	srv := subgraphStub(t, `{
		"positionSplits": [
			{"transactionHash":"0xa","logIndex":"1","blockNumber":"1","timestamp":"1700000000",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"10"},
			{"transactionHash":"0xb","logIndex":"1","blockNumber":"2","timestamp":"1700000010",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"20"},
			{"transactionHash":"0xc","logIndex":"1","blockNumber":"3","timestamp":"1700000020",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"30"}
		],
		"marketPrepareds": [
			{"transactionHash":"0xd","logIndex":"1","blockNumber":"5000","timestamp":"1700009000",
			 "address":"0xNRA","marketId":"0xm1","feeBips":"0"}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	events, err := client.FetchEvents(context.Background(), 0, 0, 3)
	require.NoError(t, err)

	require.Len(t, events, 2)
	for i, ev := range events {
		split, ok := ev.(domain.PositionSplitEvent)
		require.True(t, ok, "event %d was %T", i, ev)
		assert.Equal(t, uint64(i+1), split.Meta.BlockNumber)
	}
}

func TestFetchEventsNoCapWhenPagesNotFull(t *testing.T) {
	srv := subgraphStub(t, `{
		"positionSplits": [
			{"transactionHash":"0xa","logIndex":"1","blockNumber":"1","timestamp":"1700000000",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"10"}
		],
		"marketPrepareds": [
			{"transactionHash":"0xb","logIndex":"1","blockNumber":"5000","timestamp":"1700009000",
			 "address":"0xNRA","marketId":"0xm1","feeBips":"0"}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	events, err := client.FetchEvents(context.Background(), 0, 0, 1000)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestFetchEventsGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchEvents(context.Background(), 0, 0, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFetchEventsBadPayload(t *testing.T) {
	srv := subgraphStub(t, `{
		"positionSplits": [
			{"transactionHash":"0xa","logIndex":"1","blockNumber":"5","timestamp":"1700000000",
			 "address":"0xCTF","stakeholder":"0xs","collateralToken":"0xu","conditionId":"0xc1","amount":"not-a-number"}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchEvents(context.Background(), 0, 0, 1000)
	assert.Error(t, err)
}

func TestFetchEventsSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token-123")
	_, err := client.FetchEvents(context.Background(), 0, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-123", gotAuth)
}
