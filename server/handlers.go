package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/poller"
	"github.com/nimazasinich/crypto-dt-source-sub009/sentiment"
	"github.com/nimazasinich/crypto-dt-source-sub009/service"
)

// envelope is the canonical API response shape.
type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{OK: false, Error: msg})
}

// limitParam reads ?n= with a default and an upper bound.
func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// handleHealthz serves the aggregate health of every monitored component.
// Unhealthy aggregates answer 503 so load balancers can act on the code
// alone.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		writeData(w, health.NewHealthy("crypto-dt-agent", "no components monitored"))
		return
	}

	agg := s.monitor.AggregateHealth("crypto-dt-agent", staleHealthAfter)
	status := http.StatusOK
	if agg.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, envelope{OK: !agg.IsUnhealthy(), Data: agg})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	if s.providers == nil {
		writeData(w, []any{})
		return
	}
	writeData(w, s.providers.All())
}

func (s *Server) handleMarket(w http.ResponseWriter, _ *http.Request) {
	if s.market == nil {
		writeData(w, []poller.Snapshot{})
		return
	}
	writeData(w, s.market.Snapshots())
}

func (s *Server) handleRequestLogs(w http.ResponseWriter, r *http.Request) {
	if s.reqlog == nil {
		writeData(w, []any{})
		return
	}
	writeData(w, s.reqlog.Requests(limitParam(r, 100, 1000)))
}

func (s *Server) handleErrorLogs(w http.ResponseWriter, r *http.Request) {
	if s.reqlog == nil {
		writeData(w, []any{})
		return
	}
	writeData(w, s.reqlog.Errors(limitParam(r, 100, 1000)))
}

func (s *Server) handleFailures(w http.ResponseWriter, _ *http.Request) {
	if s.tracker == nil {
		writeData(w, []any{})
		return
	}
	writeData(w, s.tracker.All())
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	infos := make([]service.Info, 0, len(s.services))
	for _, svc := range s.services {
		infos = append(infos, svc.Info())
	}
	writeData(w, infos)
}

// sentimentView is the /api/sentiment response body.
type sentimentView struct {
	Latest  *sentiment.Reading  `json:"latest,omitempty"`
	History []sentiment.Reading `json:"history"`
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	if s.sentiment == nil {
		writeError(w, http.StatusNotFound, "sentiment polling is disabled")
		return
	}

	view := sentimentView{History: s.sentiment.History(limitParam(r, 0, 50))}
	if latest, ok := s.sentiment.Latest(); ok {
		view.Latest = &latest
	}
	writeData(w, view)
}

// classifyRequest is the POST /api/sentiment/classify body.
type classifyRequest struct {
	Headline string `json:"headline"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if s.sentiment == nil {
		writeError(w, http.StatusNotFound, "sentiment polling is disabled")
		return
	}

	var req classifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	label, err := s.sentiment.ClassifyHeadline(r.Context(), req.Headline)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, health.Sanitize(err.Error()))
		return
	}
	writeData(w, map[string]string{"headline": req.Headline, "label": string(label)})
}
