package mockserver

import (
	"github.com/getmockd/contractd/pkg/matching"
	"github.com/getmockd/contractd/pkg/mismatch"
)

// MissingInteraction is an interaction no request claimed.
type MissingInteraction struct {
	Interaction int    `json:"interaction"`
	Description string `json:"description"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	// Mismatches are those of the most recent unmatched request whose
	// closest interaction this was.
	Mismatches []mismatch.Mismatch `json:"mismatches,omitempty"`
}

// VerificationResult is the aggregate verdict of a mock server session.
type VerificationResult struct {
	Passed     bool                 `json:"passed"`
	Matched    int                  `json:"matched"`
	Missing    []MissingInteraction `json:"missing,omitempty"`
	Unexpected []Outcome            `json:"unexpected,omitempty"`
}

// Verify reports whether every interaction was claimed exactly once and no
// request went unmatched. It can be called while running or after Stop, and
// returns ErrVerificationNotReady before the first request unless the server
// has been stopped. While a stop is in progress in-flight requests may still
// be recording outcomes, so it returns ErrVerificationNotReady then too.
func (s *Server) Verify() (VerificationResult, error) {
	switch s.State() {
	case StateStopped, StateFailed:
	case StateStopping:
		return VerificationResult{}, ErrVerificationNotReady
	default:
		if s.metrics.requests.Load() == 0 {
			return VerificationResult{}, ErrVerificationNotReady
		}
	}

	outcomes, claimed := s.arena.snapshot()

	nearest := make(map[int][]mismatch.Mismatch)
	var res VerificationResult
	for _, o := range outcomes {
		if o.Status != matching.NoMatchingInteraction {
			continue
		}
		res.Unexpected = append(res.Unexpected, o)
		if o.Closest != nil && !o.Closest.AlreadyMatched {
			nearest[o.Closest.Interaction] = o.Closest.Mismatches
		}
	}
	for i, ok := range claimed {
		if ok {
			res.Matched++
			continue
		}
		in := s.arena.slots[i].interaction
		res.Missing = append(res.Missing, MissingInteraction{
			Interaction: i,
			Description: in.Description,
			Method:      in.Request.Method,
			Path:        in.Request.Path,
			Mismatches:  nearest[i],
		})
	}
	res.Passed = len(res.Missing) == 0 && len(res.Unexpected) == 0
	return res, nil
}

// Report is a JSON summary of a server.
type Report struct {
	ID           string              `json:"id"`
	URL          string              `json:"url,omitempty"`
	State        State               `json:"state"`
	Status       string              `json:"status"`
	Error        string              `json:"error,omitempty"`
	Interactions int                 `json:"interactions"`
	Metrics      Metrics             `json:"metrics"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// Report summarizes the server. Status is "ok" when the server has not
// failed and verification, if ready, passed.
func (s *Server) Report() Report {
	r := Report{
		ID:           s.id,
		URL:          s.URL(),
		State:        s.State(),
		Status:       "ok",
		Interactions: len(s.arena.slots),
		Metrics:      s.metrics.snapshot(),
	}
	if err := s.Err(); err != nil {
		r.Status = "error"
		r.Error = err.Error()
	}
	if v, err := s.Verify(); err == nil {
		r.Verification = &v
		if !v.Passed {
			r.Status = "error"
		}
	}
	return r
}
