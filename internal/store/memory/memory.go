// Package memory implements the domain store interfaces with plain maps.
// It backs unit tests and the dev mode; the postgres package is the
// production implementation.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// Store holds the shared in-memory state. Per-entity views implementing the
// domain interfaces are obtained from the accessor methods. A mutex keeps it
// safe for the read-side API even though the ingest path is serialized.
type Store struct {
	mu sync.RWMutex

	conditions  map[string]domain.Condition
	positions   map[string]domain.OutcomePosition
	marketOI    map[string]domain.MarketOpenInterest
	globalOI    *domain.GlobalOpenInterest
	userPos     map[string]domain.UserPosition
	negRisk     map[string]domain.NegRiskEvent
	activity    []domain.ActivityEntry
	activityIDs map[string]struct{}
	checkpoints map[string]domain.Checkpoint
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		conditions:  make(map[string]domain.Condition),
		positions:   make(map[string]domain.OutcomePosition),
		marketOI:    make(map[string]domain.MarketOpenInterest),
		userPos:     make(map[string]domain.UserPosition),
		negRisk:     make(map[string]domain.NegRiskEvent),
		activityIDs: make(map[string]struct{}),
		checkpoints: make(map[string]domain.Checkpoint),
	}
}

// Conditions returns the domain.ConditionStore view.
func (s *Store) Conditions() *ConditionStore { return &ConditionStore{s} }

// OpenInterest returns the domain.OpenInterestStore view.
func (s *Store) OpenInterest() *OpenInterestStore { return &OpenInterestStore{s} }

// UserPositions returns the domain.UserPositionStore view.
func (s *Store) UserPositions() *UserPositionStore { return &UserPositionStore{s} }

// NegRisk returns the domain.NegRiskStore view.
func (s *Store) NegRisk() *NegRiskStore { return &NegRiskStore{s} }

// Activity returns the domain.ActivityStore view.
func (s *Store) Activity() *ActivityStore { return &ActivityStore{s} }

// Checkpoints returns the domain.CheckpointStore view.
func (s *Store) Checkpoints() *CheckpointStore { return &CheckpointStore{s} }

// ConditionStore implements domain.ConditionStore.
type ConditionStore struct{ s *Store }

func (cs *ConditionStore) GetCondition(_ context.Context, id string) (domain.Condition, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	c, ok := cs.s.conditions[id]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return c, nil
}

func (cs *ConditionStore) SetCondition(_ context.Context, c domain.Condition) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	cs.s.conditions[c.ID] = c
	return nil
}

func (cs *ConditionStore) GetPosition(_ context.Context, id string) (domain.OutcomePosition, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	p, ok := cs.s.positions[id]
	if !ok {
		return domain.OutcomePosition{}, domain.ErrNotFound
	}
	return p, nil
}

func (cs *ConditionStore) SetPosition(_ context.Context, p domain.OutcomePosition) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	cs.s.positions[p.ID] = p
	return nil
}

// OpenInterestStore implements domain.OpenInterestStore.
type OpenInterestStore struct{ s *Store }

func (os *OpenInterestStore) GetOrCreateMarket(_ context.Context, conditionID string) (domain.MarketOpenInterest, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	oi, ok := os.s.marketOI[conditionID]
	if !ok {
		oi = domain.MarketOpenInterest{ConditionID: conditionID, Amount: new(big.Int)}
		os.s.marketOI[conditionID] = oi
	}
	return oi, nil
}

func (os *OpenInterestStore) SetMarket(_ context.Context, oi domain.MarketOpenInterest) error {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	os.s.marketOI[oi.ConditionID] = oi
	return nil
}

func (os *OpenInterestStore) ListMarkets(_ context.Context) ([]domain.MarketOpenInterest, error) {
	os.s.mu.RLock()
	defer os.s.mu.RUnlock()
	out := make([]domain.MarketOpenInterest, 0, len(os.s.marketOI))
	for _, oi := range os.s.marketOI {
		out = append(out, oi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConditionID < out[j].ConditionID })
	return out, nil
}

func (os *OpenInterestStore) GetOrCreateGlobal(_ context.Context) (domain.GlobalOpenInterest, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	if os.s.globalOI == nil {
		os.s.globalOI = &domain.GlobalOpenInterest{Amount: new(big.Int)}
	}
	return *os.s.globalOI, nil
}

func (os *OpenInterestStore) SetGlobal(_ context.Context, oi domain.GlobalOpenInterest) error {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	os.s.globalOI = &oi
	return nil
}

// UserPositionStore implements domain.UserPositionStore.
type UserPositionStore struct{ s *Store }

func (us *UserPositionStore) GetOrCreate(_ context.Context, holder, positionID string) (domain.UserPosition, error) {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	key := domain.UserPositionID(holder, positionID)
	p, ok := us.s.userPos[key]
	if !ok {
		p = domain.UserPosition{
			Holder:     holder,
			PositionID: positionID,
			Amount:     new(big.Int),
			AvgPrice:   new(big.Int),
		}
		us.s.userPos[key] = p
	}
	return p, nil
}

func (us *UserPositionStore) Set(_ context.Context, p domain.UserPosition) error {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	us.s.userPos[domain.UserPositionID(p.Holder, p.PositionID)] = p
	return nil
}

func (us *UserPositionStore) ListByHolder(_ context.Context, holder string) ([]domain.UserPosition, error) {
	us.s.mu.RLock()
	defer us.s.mu.RUnlock()
	var out []domain.UserPosition
	for _, p := range us.s.userPos {
		if p.Holder == holder {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out, nil
}

// NegRiskStore implements domain.NegRiskStore.
type NegRiskStore struct{ s *Store }

func (ns *NegRiskStore) Get(_ context.Context, marketID string) (domain.NegRiskEvent, error) {
	ns.s.mu.RLock()
	defer ns.s.mu.RUnlock()
	ev, ok := ns.s.negRisk[marketID]
	if !ok {
		return domain.NegRiskEvent{}, domain.ErrNotFound
	}
	return ev, nil
}

func (ns *NegRiskStore) Set(_ context.Context, ev domain.NegRiskEvent) error {
	ns.s.mu.Lock()
	defer ns.s.mu.Unlock()
	ns.s.negRisk[ev.MarketID] = ev
	return nil
}

// ActivityStore implements domain.ActivityStore. Inserts are idempotent on
// the activity ID.
type ActivityStore struct{ s *Store }

func (as *ActivityStore) InsertSplit(_ context.Context, sp domain.Split) error {
	return as.insert(domain.ActivityEntry{
		ID: sp.ID, Kind: "split", Timestamp: sp.Timestamp.Unix(),
		Account: sp.Stakeholder, ConditionID: sp.ConditionID, Amount: sp.Amount,
	})
}

func (as *ActivityStore) InsertMerge(_ context.Context, m domain.Merge) error {
	return as.insert(domain.ActivityEntry{
		ID: m.ID, Kind: "merge", Timestamp: m.Timestamp.Unix(),
		Account: m.Stakeholder, ConditionID: m.ConditionID, Amount: m.Amount,
	})
}

func (as *ActivityStore) InsertRedemption(_ context.Context, r domain.Redemption) error {
	return as.insert(domain.ActivityEntry{
		ID: r.ID, Kind: "redemption", Timestamp: r.Timestamp.Unix(),
		Account: r.Redeemer, ConditionID: r.ConditionID, Amount: r.Payout,
	})
}

func (as *ActivityStore) InsertConversion(_ context.Context, c domain.NegRiskConversion) error {
	return as.insert(domain.ActivityEntry{
		ID: c.ID, Kind: "conversion", Timestamp: c.Timestamp.Unix(),
		Account: c.Stakeholder, ConditionID: c.MarketID, Amount: c.Amount,
	})
}

func (as *ActivityStore) insert(e domain.ActivityEntry) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	if _, ok := as.s.activityIDs[e.ID]; ok {
		return nil
	}
	as.s.activityIDs[e.ID] = struct{}{}
	as.s.activity = append(as.s.activity, e)
	return nil
}

func (as *ActivityStore) ListRecent(_ context.Context, limit int) ([]domain.ActivityEntry, error) {
	as.s.mu.RLock()
	defer as.s.mu.RUnlock()
	n := len(as.s.activity)
	if limit <= 0 || limit > n {
		limit = n
	}
	// Newest first, matching the SQL ORDER BY ts DESC.
	out := make([]domain.ActivityEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, as.s.activity[i])
	}
	return out, nil
}

// CheckpointStore implements domain.CheckpointStore.
type CheckpointStore struct{ s *Store }

func (ps *CheckpointStore) Get(_ context.Context, id string) (domain.Checkpoint, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()
	cp, ok := ps.s.checkpoints[id]
	if !ok {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	return cp, nil
}

func (ps *CheckpointStore) Set(_ context.Context, cp domain.Checkpoint) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	ps.s.checkpoints[cp.ID] = cp
	return nil
}
