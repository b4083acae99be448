package analytics

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/malbeclabs/calldash/api/leads"
	"github.com/malbeclabs/calldash/api/view"
)

const maxObjections = 10

type objectionRule struct {
	label   string
	pattern *regexp.Regexp
}

// Evaluated in order against lowercased transcripts. Order breaks ties in the ranking.
var objectionRules = []objectionRule{
	{"Not interested", regexp.MustCompile(`not interested|no thanks|no thank you`)},
	{"Price / cost", regexp.MustCompile(`too expensive|expensive|\bcost|\bprice|afford|budget`)},
	{"Bad timing", regexp.MustCompile(`bad time|not a good time|busy right now|in a meeting|driving`)},
	{"Call back later", regexp.MustCompile(`call (me )?(back )?later|call back|try (me )?again`)},
	{"Already has a provider", regexp.MustCompile(`already (have|has|got|use|using)|another (company|provider)|current provider`)},
	{"Needs to consult someone", regexp.MustCompile(`\b(wife|husband|spouse|partner)\b|talk (to|with) my|think about it`)},
	{"Do not call", regexp.MustCompile(`stop calling|do not call|don't call|remove me|take me off`)},
	{"Trust concern", regexp.MustCompile(`\bscam\b|\bspam\b|\brobot\b|is this real|how did you get my number`)},
	{"Wants information first", regexp.MustCompile(`send (me )?(some )?info|more information|email me|your website`)},
	{"Not the decision maker", regexp.MustCompile(`\brent(ing)?\b|landlord|not the owner|decision maker`)},
	{"Wrong person", regexp.MustCompile(`wrong (number|person)|doesn't live here|no one by that name`)},
	{"No need", regexp.MustCompile(`don't need|do not need|not needed|no need`)},
}

type ObjectionCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type DayReport struct {
	Date                string           `json:"date"`
	Calls               int              `json:"calls"`
	Contacted           int              `json:"contacted"`
	Booked              int              `json:"booked"`
	ConversionRate      string           `json:"conversionRate"`
	AvgDuration         float64          `json:"avgDuration"`
	TranscriptsAnalyzed int              `json:"transcriptsAnalyzed"`
	Objections          []ObjectionCount `json:"objections"`
}

// AnalyzeDay classifies the transcripts of calls made on date and returns the most
// common objections with basic conversion metrics for that day.
func AnalyzeDay(records []leads.Record, date string) DayReport {
	day := OnDate(records, date)
	r := DayReport{Date: date, Calls: len(day)}

	var durationSum float64
	var durationN int
	for _, rec := range day {
		if rec.Outcome != "" && rec.Outcome != leads.OutcomeVoicemail && rec.Outcome != leads.OutcomeNoAnswer {
			r.Contacted++
		}
		if rec.Outcome == leads.OutcomeBooked {
			r.Booked++
		}
		if rec.ProbedDuration > 0 {
			durationSum += rec.ProbedDuration
			durationN++
		}
		if rec.Transcript != "" {
			r.TranscriptsAnalyzed++
		}
	}
	r.ConversionRate = view.Rate(r.Booked, r.Contacted)
	if durationN > 0 {
		r.AvgDuration = math.Round(durationSum / float64(durationN))
	}
	r.Objections = ClassifyObjections(day)
	return r
}

// ClassifyObjections counts, per category, the records whose transcript matches it.
// A record counts at most once per category but may match several categories.
func ClassifyObjections(records []leads.Record) []ObjectionCount {
	counts := make([]ObjectionCount, len(objectionRules))
	for i, rule := range objectionRules {
		counts[i].Label = rule.label
	}
	for _, rec := range records {
		if rec.Transcript == "" {
			continue
		}
		text := strings.ToLower(rec.Transcript)
		for i, rule := range objectionRules {
			if rule.pattern.MatchString(text) {
				counts[i].Count++
			}
		}
	}

	out := make([]ObjectionCount, 0, len(counts))
	for _, c := range counts {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > maxObjections {
		out = out[:maxObjections]
	}
	return out
}
