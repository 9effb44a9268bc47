package mockserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getmockd/contractd/internal/id"
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/httputil"
	"github.com/getmockd/contractd/pkg/matching"
)

// Diagnostic is the body of the 500 response sent for a request that no
// unclaimed interaction matches.
type Diagnostic struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Request RequestSummary `json:"request"`
	Closest *Closest       `json:"closest"`
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	summary := RequestSummary{
		ID:     id.Request(),
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
	}
	log := s.log.With("request", summary.ID, "method", r.Method, "path", r.URL.Path)

	data, err := httputil.ReadBody(w, r, s.cfg.MaxBodySize)
	if err != nil {
		s.metrics.ioErrors.Add(1)
		ioErr := &IOError{Method: r.Method, Path: r.URL.Path, Op: "read request", Err: err}
		log.Warn("request failed", "error", ioErr)
		httputil.WriteErrorWithDetails(w, httputil.ReadErrorStatus(err), "read_error", ioErr.Error(), summary)
		return
	}
	s.metrics.requests.Add(1)

	req := matching.RequestFromHTTP(r, data)
	index, closest := s.arena.claim(req, s.matchOps)

	if index < 0 && s.cfg.CORSPreflight && isPreflight(r) {
		s.metrics.preflight.Add(1)
		log.Debug("answered CORS preflight")
		writePreflight(w, r)
		return
	}

	outcome := Outcome{Request: summary, Interaction: index, Closest: closest, At: time.Now()}
	if index < 0 {
		outcome.Status = matching.NoMatchingInteraction
		s.arena.record(outcome)
		s.metrics.unmatched.Add(1)
		s.writeDiagnostic(w, summary, closest)
		if closest != nil {
			log.Warn("no matching interaction",
				"closest", closest.Interaction,
				"already_matched", closest.AlreadyMatched,
				"reason", closest.Reason)
		} else {
			log.Warn("no matching interaction")
		}
		return
	}

	in := s.arena.slots[index].interaction
	outcome.Status = matching.Matched
	outcome.Description = in.Description
	s.arena.record(outcome)
	s.metrics.matched.Add(1)
	log.Debug("request matched", "interaction", index, "description", in.Description)

	if err := writeResponse(w, in.Response); err != nil {
		s.metrics.ioErrors.Add(1)
		log.Warn("request failed", "error", &IOError{Method: r.Method, Path: r.URL.Path, Op: "write response", Err: err})
	}
}

// writeResponse writes the interaction's response. The body content type is
// sent only when no configured header sets Content-Type.
func writeResponse(w http.ResponseWriter, resp contract.Response) error {
	h := w.Header()
	for name, values := range resp.Headers {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	if h.Get("Content-Type") == "" && resp.Body.ContentType != "" && resp.Body.State != contract.BodyMissing {
		h.Set("Content-Type", resp.Body.ContentType)
	}
	w.WriteHeader(resp.Status)
	if !resp.Body.IsPresent() {
		return nil
	}
	if _, err := w.Write(resp.Body.Content); err != nil {
		return err
	}
	return nil
}

func (s *Server) writeDiagnostic(w http.ResponseWriter, req RequestSummary, closest *Closest) {
	d := Diagnostic{
		Error:   "no_matching_interaction",
		Request: req,
		Closest: closest,
	}
	switch {
	case closest == nil:
		d.Message = fmt.Sprintf("No interaction is registered for %s %s", req.Method, req.Path)
	case closest.AlreadyMatched && len(closest.Mismatches) == 0:
		d.Message = fmt.Sprintf("Interaction %d (%q) was already matched by an earlier request",
			closest.Interaction, closest.Description)
	default:
		d.Message = fmt.Sprintf("No unclaimed interaction matched %s %s; closest is %d (%q): %s",
			req.Method, req.Path, closest.Interaction, closest.Description, closest.Reason)
	}
	httputil.WriteJSON(w, http.StatusInternalServerError, d)
}
