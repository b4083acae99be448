package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/malbeclabs/calldash/api/leads"
	"github.com/malbeclabs/calldash/api/view"
)

const (
	dailyDays = 30
	noOutcome = "No Outcome"
)

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type HourCount struct {
	Hour  int `json:"hour"`
	Calls int `json:"calls"`
}

type AgentStats struct {
	Agent         string  `json:"agent"`
	Calls         int     `json:"calls"`
	Booked        int     `json:"booked"`
	Voicemail     int     `json:"voicemail"`
	NoAnswer      int     `json:"noAnswer"`
	NotInterested int     `json:"notInterested"`
	Callback      int     `json:"callback"`
	WrongNumber   int     `json:"wrongNumber"`
	Busy          int     `json:"busy"`
	ContactRate   float64 `json:"contactRate"`
	BookRate      float64 `json:"bookRate"`
	AvgDuration   float64 `json:"avgDuration"`

	durationSum float64
	durationN   int
}

type Report struct {
	Date            string            `json:"date,omitempty"`
	TotalCalls      int               `json:"totalCalls"`
	Outcomes        map[string]int    `json:"outcomes"`
	Hourly          []int             `json:"hourly"`
	DurationBuckets []Bucket          `json:"durationBuckets"`
	Daily           []view.TrendPoint `json:"daily"`
	Statuses        map[string]int    `json:"statuses"`
	Agents          []AgentStats      `json:"agents"`
	BusiestHour     HourCount         `json:"busiestHour"`
}

var durationBounds = []struct {
	label string
	max   float64
}{
	{"0-30s", 30},
	{"31-60s", 60},
	{"1-2m", 120},
	{"2-5m", 300},
	{"5-10m", 600},
	{"10m+", math.Inf(1)},
}

// Analyze aggregates records. A non-empty date restricts the input to calls made on
// that day. Hours are taken in now's location.
func Analyze(records []leads.Record, date string, now time.Time) Report {
	if date != "" {
		records = OnDate(records, date)
	}

	r := Report{
		Date:            date,
		TotalCalls:      len(records),
		Outcomes:        make(map[string]int),
		Hourly:          make([]int, 24),
		DurationBuckets: make([]Bucket, len(durationBounds)),
		Statuses:        make(map[string]int),
	}
	for i, b := range durationBounds {
		r.DurationBuckets[i].Label = b.label
	}

	agents := make(map[string]*AgentStats)
	perDay := make(map[string]*view.TrendPoint)
	loc := now.Location()

	for _, rec := range records {
		outcome := rec.Outcome
		if outcome == "" {
			outcome = noOutcome
		}
		r.Outcomes[outcome]++
		if rec.Status != "" {
			r.Statuses[rec.Status]++
		}

		if t, err := time.Parse(time.RFC3339, rec.LastCallDate); err == nil {
			r.Hourly[t.In(loc).Hour()]++
		}

		if rec.ProbedDuration > 0 {
			for i, b := range durationBounds {
				if rec.ProbedDuration <= b.max {
					r.DurationBuckets[i].Count++
					break
				}
			}
		}

		if day := callDay(rec); day != "" {
			p := perDay[day]
			if p == nil {
				p = &view.TrendPoint{Date: day}
				perDay[day] = p
			}
			p.Calls++
			if rec.Outcome == leads.OutcomeBooked {
				p.Booked++
			}
		}

		a := agents[rec.AgentName]
		if a == nil {
			a = &AgentStats{Agent: rec.AgentName}
			agents[rec.AgentName] = a
		}
		a.add(rec)
	}

	r.Daily = view.DailySeries(perDay, now, dailyDays)
	r.BusiestHour = busiestHour(r.Hourly)

	r.Agents = make([]AgentStats, 0, len(agents))
	for _, a := range agents {
		a.finish()
		r.Agents = append(r.Agents, *a)
	}
	sort.Slice(r.Agents, func(i, j int) bool {
		if r.Agents[i].Calls != r.Agents[j].Calls {
			return r.Agents[i].Calls > r.Agents[j].Calls
		}
		return r.Agents[i].Agent < r.Agents[j].Agent
	})
	return r
}

func (a *AgentStats) add(rec leads.Record) {
	a.Calls++
	switch rec.Outcome {
	case leads.OutcomeBooked:
		a.Booked++
	case leads.OutcomeVoicemail:
		a.Voicemail++
	case leads.OutcomeNoAnswer:
		a.NoAnswer++
	case leads.OutcomeNotInterested:
		a.NotInterested++
	case leads.OutcomeCallbackRequested:
		a.Callback++
	case leads.OutcomeWrongNumber:
		a.WrongNumber++
	case leads.OutcomeBusy:
		a.Busy++
	}
	if rec.ProbedDuration > 0 {
		a.durationSum += rec.ProbedDuration
		a.durationN++
	}
}

func (a *AgentStats) finish() {
	contacted := a.Calls - a.Voicemail - a.NoAnswer
	a.ContactRate = percent(contacted, a.Calls)
	a.BookRate = percent(a.Booked, contacted)
	if a.durationN > 0 {
		a.AvgDuration = math.Round(a.durationSum / float64(a.durationN))
	}
}

// percent is num/den*100 rounded to one decimal, 0 when den is not positive.
func percent(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}

func busiestHour(hourly []int) HourCount {
	best := HourCount{}
	for h, n := range hourly {
		if n > best.Calls {
			best = HourCount{Hour: h, Calls: n}
		}
	}
	return best
}

func callDay(rec leads.Record) string {
	if len(rec.LastCallDate) < len("2006-01-02") {
		return ""
	}
	return rec.LastCallDate[:len("2006-01-02")]
}

// OnDate returns the records whose last call happened on date (yyyy-mm-dd).
func OnDate(records []leads.Record, date string) []leads.Record {
	out := make([]leads.Record, 0)
	for _, rec := range records {
		if strings.HasPrefix(rec.LastCallDate, date) {
			out = append(out, rec)
		}
	}
	return out
}
