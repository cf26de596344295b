// Package goldsky fetches decoded conditional-token and neg-risk adapter
// events from a Goldsky subgraph over GraphQL. The subgraph indexes raw
// chain logs; this client only orders and converts them.
package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// Client is a GraphQL client for the Goldsky subgraph indexer.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// rawEvent is the shared shape of every event entity in the subgraph.
type rawEvent struct {
	TransactionHash string `json:"transactionHash"`
	LogIndex        string `json:"logIndex"`
	BlockNumber     string `json:"blockNumber"`
	Timestamp       string `json:"timestamp"`
	Address         string `json:"address"`

	ConditionID      string   `json:"conditionId"`
	Oracle           string   `json:"oracle"`
	QuestionID       string   `json:"questionId"`
	OutcomeSlotCount string   `json:"outcomeSlotCount"`
	PayoutNumerators []string `json:"payoutNumerators"`
	Stakeholder      string   `json:"stakeholder"`
	Redeemer         string   `json:"redeemer"`
	CollateralToken  string   `json:"collateralToken"`
	Amount           string   `json:"amount"`
	Payout           string   `json:"payout"`
	MarketID         string   `json:"marketId"`
	FeeBips          string   `json:"feeBips"`
	QuestionIndex    string   `json:"questionIndex"`
	IndexSet         string   `json:"indexSet"`
}

const eventsQuery = `
	query CTFEvents($fromBlock: BigInt!, $first: Int!) {
		conditionPreparations(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			conditionId oracle questionId outcomeSlotCount
		}
		conditionResolutions(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			conditionId payoutNumerators
		}
		positionSplits(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			stakeholder collateralToken conditionId amount
		}
		positionsMerges(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			stakeholder collateralToken conditionId amount
		}
		payoutRedemptions(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			redeemer collateralToken conditionId payout
		}
		marketPrepareds(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			marketId feeBips
		}
		questionPrepareds(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			marketId questionId questionIndex
		}
		positionsConverteds(first: $first, orderBy: blockNumber, orderDirection: asc, where: { blockNumber_gte: $fromBlock }) {
			transactionHash logIndex blockNumber timestamp address
			stakeholder marketId indexSet amount
		}
	}
`

// FetchEvents queries all event collections at or after fromBlock, drops
// anything before the (fromBlock, fromLogIndex) cursor, and returns the rest
// merged in ascending (block, logIndex) order. limit applies per collection.
//
// When a collection fills its page, events past its last returned block may
// be missing, so the merged batch is capped at the lowest such block across
// all full collections. Everything beyond the cap comes back on the next
// call once the cursor has advanced.
func (c *Client) FetchEvents(ctx context.Context, fromBlock uint64, fromLogIndex uint, limit int) ([]domain.Event, error) {
	variables := map[string]any{
		"fromBlock": strconv.FormatUint(fromBlock, 10),
		"first":     limit,
	}

	respData, err := c.doQuery(ctx, eventsQuery, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch events: %w", err)
	}

	var result struct {
		ConditionPreparations []rawEvent `json:"conditionPreparations"`
		ConditionResolutions  []rawEvent `json:"conditionResolutions"`
		PositionSplits        []rawEvent `json:"positionSplits"`
		PositionsMerges       []rawEvent `json:"positionsMerges"`
		PayoutRedemptions     []rawEvent `json:"payoutRedemptions"`
		MarketPrepareds       []rawEvent `json:"marketPrepareds"`
		QuestionPrepareds     []rawEvent `json:"questionPrepareds"`
		PositionsConverteds   []rawEvent `json:"positionsConverteds"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode events: %w", err)
	}

	var events []domain.Event
	appendAll := func(raws []rawEvent, convert func(rawEvent, domain.EventMeta) (domain.Event, error)) (uint64, error) {
		var maxBlock uint64
		for _, raw := range raws {
			meta, err := raw.meta()
			if err != nil {
				return 0, err
			}
			ev, err := convert(raw, meta)
			if err != nil {
				return 0, err
			}
			if meta.BlockNumber > maxBlock {
				maxBlock = meta.BlockNumber
			}
			events = append(events, ev)
		}
		return maxBlock, nil
	}

	completeThrough := uint64(math.MaxUint64)
	for _, group := range []struct {
		raws    []rawEvent
		convert func(rawEvent, domain.EventMeta) (domain.Event, error)
	}{
		{result.ConditionPreparations, convertPreparation},
		{result.ConditionResolutions, convertResolution},
		{result.PositionSplits, convertSplit},
		{result.PositionsMerges, convertMerge},
		{result.PayoutRedemptions, convertRedemption},
		{result.MarketPrepareds, convertMarketPrepared},
		{result.QuestionPrepareds, convertQuestionPrepared},
		{result.PositionsConverteds, convertConversion},
	} {
		maxBlock, err := appendAll(group.raws, group.convert)
		if err != nil {
			return nil, fmt.Errorf("goldsky: convert events: %w", err)
		}
		if limit <= 0 || len(group.raws) < limit {
			continue
		}
		// This collection's page is full: anything past its last block may
		// have been cut, and the last block itself may be partial. Cap the
		// batch just below it so no later event outruns the cursor. When
		// the whole page sits in the cursor block the cap cannot back up
		// any further without stalling, so the partial block is accepted.
		capBlock := maxBlock
		if capBlock > fromBlock {
			capBlock--
		}
		if capBlock < completeThrough {
			completeThrough = capBlock
		}
	}

	// Drop events behind the cursor or beyond the complete range, then
	// restore global log order.
	filtered := events[:0]
	for _, ev := range events {
		meta := ev.EventMeta()
		if meta.BlockNumber < fromBlock || meta.BlockNumber > completeThrough {
			continue
		}
		if meta.BlockNumber == fromBlock && meta.LogIndex < fromLogIndex {
			continue
		}
		filtered = append(filtered, ev)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i].EventMeta(), filtered[j].EventMeta()
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})

	return filtered, nil
}

func (r rawEvent) meta() (domain.EventMeta, error) {
	block, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return domain.EventMeta{}, fmt.Errorf("bad block number %q: %w", r.BlockNumber, err)
	}
	logIndex, err := strconv.ParseUint(r.LogIndex, 10, 32)
	if err != nil {
		return domain.EventMeta{}, fmt.Errorf("bad log index %q: %w", r.LogIndex, err)
	}
	ts, err := strconv.ParseInt(r.Timestamp, 10, 64)
	if err != nil {
		return domain.EventMeta{}, fmt.Errorf("bad timestamp %q: %w", r.Timestamp, err)
	}
	return domain.EventMeta{
		Address:     strings.ToLower(r.Address),
		TxHash:      r.TransactionHash,
		LogIndex:    uint(logIndex),
		BlockNumber: block,
		Timestamp:   time.Unix(ts, 0).UTC(),
	}, nil
}

func convertPreparation(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	slots, err := strconv.Atoi(r.OutcomeSlotCount)
	if err != nil {
		return nil, fmt.Errorf("bad outcome slot count %q: %w", r.OutcomeSlotCount, err)
	}
	return domain.ConditionPreparationEvent{
		Meta:             meta,
		ConditionID:      r.ConditionID,
		Oracle:           r.Oracle,
		QuestionID:       r.QuestionID,
		OutcomeSlotCount: slots,
	}, nil
}

func convertResolution(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	numerators := make([]*big.Int, 0, len(r.PayoutNumerators))
	for _, n := range r.PayoutNumerators {
		v, err := parseBig(n)
		if err != nil {
			return nil, err
		}
		numerators = append(numerators, v)
	}
	return domain.ConditionResolutionEvent{
		Meta:             meta,
		ConditionID:      r.ConditionID,
		PayoutNumerators: numerators,
	}, nil
}

func convertSplit(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	amount, err := parseBig(r.Amount)
	if err != nil {
		return nil, err
	}
	return domain.PositionSplitEvent{
		Meta:            meta,
		Stakeholder:     r.Stakeholder,
		CollateralToken: r.CollateralToken,
		ConditionID:     r.ConditionID,
		Amount:          amount,
	}, nil
}

func convertMerge(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	amount, err := parseBig(r.Amount)
	if err != nil {
		return nil, err
	}
	return domain.PositionsMergeEvent{
		Meta:            meta,
		Stakeholder:     r.Stakeholder,
		CollateralToken: r.CollateralToken,
		ConditionID:     r.ConditionID,
		Amount:          amount,
	}, nil
}

func convertRedemption(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	payout, err := parseBig(r.Payout)
	if err != nil {
		return nil, err
	}
	return domain.PayoutRedemptionEvent{
		Meta:            meta,
		Redeemer:        r.Redeemer,
		CollateralToken: r.CollateralToken,
		ConditionID:     r.ConditionID,
		Payout:          payout,
	}, nil
}

func convertMarketPrepared(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	feeBps, err := strconv.ParseInt(r.FeeBips, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad fee bips %q: %w", r.FeeBips, err)
	}
	return domain.MarketPreparedEvent{
		Meta:     meta,
		MarketID: r.MarketID,
		FeeBps:   feeBps,
	}, nil
}

func convertQuestionPrepared(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	index, err := strconv.Atoi(r.QuestionIndex)
	if err != nil {
		return nil, fmt.Errorf("bad question index %q: %w", r.QuestionIndex, err)
	}
	return domain.QuestionPreparedEvent{
		Meta:          meta,
		MarketID:      r.MarketID,
		QuestionID:    r.QuestionID,
		QuestionIndex: index,
	}, nil
}

func convertConversion(r rawEvent, meta domain.EventMeta) (domain.Event, error) {
	amount, err := parseBig(r.Amount)
	if err != nil {
		return nil, err
	}
	indexSet, err := parseBig(r.IndexSet)
	if err != nil {
		return nil, err
	}
	return domain.PositionsConvertedEvent{
		Meta:        meta,
		Stakeholder: r.Stakeholder,
		MarketID:    r.MarketID,
		IndexSet:    indexSet,
		Amount:      amount,
	}, nil
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad integer %q", s)
	}
	return v, nil
}

// doQuery executes a GraphQL request and returns the raw data payload.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}
