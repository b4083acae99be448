package analytics

import (
	"unicode/utf8"

	"github.com/malbeclabs/calldash/api/leads"
)

const (
	maxSample           = 50
	maxPerOtherOutcome  = 5
	maxSampleTranscript = 1500
)

// SampleRecord is the name-free projection of a call sent for narrative analysis.
type SampleRecord struct {
	Outcome    string  `json:"outcome"`
	Status     string  `json:"status"`
	Duration   float64 `json:"duration"`
	Attempts   int     `json:"attempts"`
	Transcript string  `json:"transcript"`
}

// NarrativeSample selects every booked call plus up to five calls per other outcome,
// at most fifty in total, with booked calls taking priority.
func NarrativeSample(records []leads.Record) []SampleRecord {
	out := make([]SampleRecord, 0, min(len(records), maxSample))
	for _, rec := range records {
		if len(out) == maxSample {
			return out
		}
		if rec.Outcome == leads.OutcomeBooked {
			out = append(out, project(rec))
		}
	}

	perOutcome := make(map[string]int)
	for _, rec := range records {
		if len(out) == maxSample {
			break
		}
		if rec.Outcome == leads.OutcomeBooked || perOutcome[rec.Outcome] == maxPerOtherOutcome {
			continue
		}
		perOutcome[rec.Outcome]++
		out = append(out, project(rec))
	}
	return out
}

func project(rec leads.Record) SampleRecord {
	outcome := rec.Outcome
	if outcome == "" {
		outcome = noOutcome
	}
	return SampleRecord{
		Outcome:    outcome,
		Status:     rec.Status,
		Duration:   rec.ProbedDuration,
		Attempts:   rec.Attempts,
		Transcript: truncate(rec.Transcript, maxSampleTranscript),
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
