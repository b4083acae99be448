package handlers

import (
	"net/http"
	"time"

	"github.com/malbeclabs/calldash/api/analytics"
	"github.com/malbeclabs/calldash/api/narrative"
)

const dateLayout = "2006-01-02"

// parseDate validates an optional yyyy-mm-dd query value.
func parseDate(r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return "", true
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

func (s *Server) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}
	snap, hit, err := s.cfg.Cache.Lookup(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "failed to fetch leads", err, false)
		return
	}
	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, analytics.Analyze(snap.Records, date, s.now()))
}

// GetDayAnalysis classifies objections for one day, today by default.
func (s *Server) GetDayAnalysis(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}
	if date == "" {
		date = s.now().Format(dateLayout)
	}
	snap, hit, err := s.cfg.Cache.Lookup(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "failed to fetch leads", err, false)
		return
	}
	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, analytics.AnalyzeDay(snap.Records, date))
}

type narrativeResponse struct {
	Date     string              `json:"date"`
	Analysis string              `json:"analysis"`
	Cached   bool                `json:"cached"`
	Metrics  analytics.DayReport `json:"metrics"`
}

// PostNarrative generates a written analysis of one day's calls.
func (s *Server) PostNarrative(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Narrator == nil {
		writeError(w, http.StatusServiceUnavailable, "narrative analysis is not configured")
		return
	}
	if s.cfg.NarrativeLimiter != nil && !s.cfg.NarrativeLimiter.Allow(clientIP(r)) {
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, "too many analysis requests, try again shortly")
		return
	}

	date, ok := parseDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}
	if date == "" {
		date = s.now().Format(dateLayout)
	}

	snap, err := s.cfg.Cache.Get(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "failed to fetch leads", err, false)
		return
	}

	day := analytics.AnalyzeDay(snap.Records, date)
	if day.Calls == 0 {
		writeError(w, http.StatusNotFound, "no calls on "+date)
		return
	}
	sample := analytics.NarrativeSample(analytics.OnDate(snap.Records, date))

	text, cached, err := s.cfg.Narrator.Analyze(r.Context(), narrative.Key(date, day.Calls), narrative.BuildPrompt(day, sample))
	if err != nil {
		ne := narrative.Classify(err)
		status := http.StatusBadGateway
		if ne.InsufficientCredit {
			status = http.StatusPaymentRequired
		}
		writeJSON(w, status, errorResponse{Error: ne.Message(), InsufficientCredit: ne.InsufficientCredit})
		return
	}

	writeJSON(w, http.StatusOK, narrativeResponse{Date: date, Analysis: text, Cached: cached, Metrics: day})
}
