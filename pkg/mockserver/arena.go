package mockserver

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/matching"
	"github.com/getmockd/contractd/pkg/mismatch"
)

// slot is one registered interaction and its claim flag.
type slot struct {
	interaction contract.Interaction
	specificity int
	claimed     atomic.Bool
}

// RequestSummary identifies a received request in outcomes and diagnostics.
type RequestSummary struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
}

// Closest describes the interaction nearest to an unmatched request.
type Closest struct {
	Interaction    int                 `json:"interaction"`
	Description    string              `json:"description"`
	AlreadyMatched bool                `json:"alreadyMatched"`
	Reason         string              `json:"reason"`
	Mismatches     []mismatch.Mismatch `json:"mismatches"`
}

// Outcome records how one request was handled.
type Outcome struct {
	Request RequestSummary  `json:"request"`
	Status  matching.Status `json:"status"`
	// Interaction is the index of the claimed interaction, or -1.
	Interaction int       `json:"interaction"`
	Description string    `json:"description,omitempty"`
	Closest     *Closest  `json:"closest,omitempty"`
	At          time.Time `json:"at"`
}

// arena holds the fixed interaction set. Matching reads it without locking;
// only claims (per-slot CAS) and the outcome log mutate state.
type arena struct {
	slots  []*slot
	policy TieBreak

	mu       sync.Mutex
	outcomes []Outcome
}

func newArena(interactions []contract.Interaction, policy TieBreak) *arena {
	a := &arena{slots: make([]*slot, len(interactions)), policy: policy}
	for i, in := range interactions {
		a.slots[i] = &slot{interaction: in, specificity: matching.Specificity(in.Request)}
	}
	return a
}

// claim matches req against every interaction and commits the first
// candidate, in policy order, whose flag it manages to set. It returns the
// claimed index or -1 with the closest interaction.
func (a *arena) claim(req contract.Request, opts []matching.Option) (int, *Closest) {
	results := make([]matching.Result, len(a.slots))
	var candidates []int
	for i, s := range a.slots {
		results[i] = matching.MatchRequest(s.interaction.Request, req, opts...)
		if results[i].Matched() {
			candidates = append(candidates, i)
		}
	}

	if a.policy == TieBreakBestFit {
		slices.SortStableFunc(candidates, func(x, y int) int {
			return a.slots[y].specificity - a.slots[x].specificity
		})
	}
	for _, i := range candidates {
		if a.slots[i].claimed.CompareAndSwap(false, true) {
			return i, nil
		}
	}
	return -1, a.closest(results)
}

// closest picks the near-miss for an unmatched request. An interaction the
// request matched exactly but that was already claimed explains the miss
// best. Otherwise the unclaimed interaction with the fewest mismatches wins,
// falling back to claimed ones when every interaction is claimed.
func (a *arena) closest(results []matching.Result) *Closest {
	best, bestClaimed := -1, -1
	for i, r := range results {
		if a.slots[i].claimed.Load() {
			if r.Matched() {
				return a.describe(i, r, true)
			}
			if bestClaimed < 0 || len(r.Mismatches) < len(results[bestClaimed].Mismatches) {
				bestClaimed = i
			}
			continue
		}
		if best < 0 || len(r.Mismatches) < len(results[best].Mismatches) {
			best = i
		}
	}
	switch {
	case best >= 0:
		return a.describe(best, results[best], false)
	case bestClaimed >= 0:
		return a.describe(bestClaimed, results[bestClaimed], true)
	}
	return nil
}

func (a *arena) describe(i int, r matching.Result, claimed bool) *Closest {
	ms := r.Mismatches
	if ms == nil {
		ms = []mismatch.Mismatch{}
	}
	return &Closest{
		Interaction:    i,
		Description:    a.slots[i].interaction.Description,
		AlreadyMatched: claimed,
		Reason:         matching.Reason(r),
		Mismatches:     ms,
	}
}

func (a *arena) record(o Outcome) {
	a.mu.Lock()
	a.outcomes = append(a.outcomes, o)
	a.mu.Unlock()
}

// snapshot returns a copy of the outcome log and the claim flags.
func (a *arena) snapshot() ([]Outcome, []bool) {
	a.mu.Lock()
	outcomes := slices.Clone(a.outcomes)
	a.mu.Unlock()
	claimed := make([]bool, len(a.slots))
	for i, s := range a.slots {
		claimed[i] = s.claimed.Load()
	}
	return outcomes, claimed
}
