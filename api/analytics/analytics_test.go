package analytics

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/calldash/api/leads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

func TestCalldash_Analytics_Analyze(t *testing.T) {
	t.Parallel()

	records := []leads.Record{
		{AgentName: "Morgan", Outcome: "Booked", Status: "Booked", ProbedDuration: 25, LastCallDate: "2026-03-10T09:15:00.000Z"},
		{AgentName: "Morgan", Outcome: "Voicemail", Status: "Contacted", ProbedDuration: 45, LastCallDate: "2026-03-10T09:45:00.000Z"},
		{AgentName: "Morgan", Outcome: "No Answer", Status: "Contacted", LastCallDate: "2026-03-10T14:00:00.000Z"},
		{AgentName: "Morgan", Outcome: "Not Interested", Status: "Not Interested", ProbedDuration: 90, LastCallDate: "2026-03-09T14:00:00.000Z"},
		{AgentName: "Alex", Outcome: "", Status: "New", ProbedDuration: 700, LastCallDate: "not a date"},
		{AgentName: "Alex", Outcome: "Busy", Status: "Callback", ProbedDuration: 300, LastCallDate: "2026-03-08T14:30:00Z"},
	}

	r := Analyze(records, "", testNow)

	t.Run("outcome histogram buckets missing outcomes", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 6, r.TotalCalls)
		assert.Equal(t, 1, r.Outcomes["No Outcome"])
		assert.Equal(t, 1, r.Outcomes["Booked"])
	})

	t.Run("hourly histogram skips unparseable timestamps", func(t *testing.T) {
		t.Parallel()
		require.Len(t, r.Hourly, 24)
		assert.Equal(t, 2, r.Hourly[9])
		assert.Equal(t, 3, r.Hourly[14])
		total := 0
		for _, n := range r.Hourly {
			total += n
		}
		assert.Equal(t, 5, total)
	})

	t.Run("busiest hour", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, HourCount{Hour: 14, Calls: 3}, r.BusiestHour)
	})

	t.Run("duration buckets", func(t *testing.T) {
		t.Parallel()
		counts := map[string]int{}
		for _, b := range r.DurationBuckets {
			counts[b.Label] = b.Count
		}
		assert.Equal(t, map[string]int{
			"0-30s": 1, "31-60s": 1, "1-2m": 1, "2-5m": 1, "5-10m": 0, "10m+": 1,
		}, counts)
		assert.Equal(t, "0-30s", r.DurationBuckets[0].Label)
		assert.Equal(t, "10m+", r.DurationBuckets[5].Label)
	})

	t.Run("daily series covers thirty days", func(t *testing.T) {
		t.Parallel()
		require.Len(t, r.Daily, 30)
		last := r.Daily[29]
		assert.Equal(t, "2026-03-10", last.Date)
		assert.Equal(t, 3, last.Calls)
		assert.Equal(t, 1, last.Booked)
	})

	t.Run("per agent breakdown", func(t *testing.T) {
		t.Parallel()
		require.Len(t, r.Agents, 2)
		m := r.Agents[0]
		assert.Equal(t, "Morgan", m.Agent)
		assert.Equal(t, 4, m.Calls)
		assert.Equal(t, 1, m.Booked)
		assert.Equal(t, 1, m.Voicemail)
		assert.Equal(t, 1, m.NoAnswer)
		assert.Equal(t, 1, m.NotInterested)
		assert.Equal(t, 50.0, m.ContactRate)
		assert.Equal(t, 50.0, m.BookRate)
		assert.Equal(t, float64(53), m.AvgDuration)

		a := r.Agents[1]
		assert.Equal(t, "Alex", a.Agent)
		assert.Equal(t, 1, a.Busy)
		assert.Equal(t, 100.0, a.ContactRate)
		assert.Equal(t, 0.0, a.BookRate)
	})

	t.Run("date filter restricts input", func(t *testing.T) {
		t.Parallel()
		day := Analyze(records, "2026-03-10", testNow)
		assert.Equal(t, 3, day.TotalCalls)
		assert.Equal(t, "2026-03-10", day.Date)
	})
}

func TestCalldash_Analytics_Percent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 33.3, percent(1, 3))
	assert.Equal(t, 66.7, percent(2, 3))
	assert.Equal(t, 0.0, percent(1, 0))
}

func TestCalldash_Analytics_AnalyzeDay(t *testing.T) {
	t.Parallel()

	records := []leads.Record{
		{Outcome: "Not Interested", LastCallDate: "2026-03-10T10:00:00Z", Transcript: "Honestly it's too EXPENSIVE and I'm not interested."},
		{Outcome: "Callback Requested", LastCallDate: "2026-03-10T11:00:00Z", Transcript: "Can you call me back later? I need to ask my wife.", ProbedDuration: 40},
		{Outcome: "Booked", LastCallDate: "2026-03-10T12:00:00Z", Transcript: "Sure, the price sounds fine.", ProbedDuration: 120},
		{Outcome: "Voicemail", LastCallDate: "2026-03-10T13:00:00Z"},
		{Outcome: "Not Interested", LastCallDate: "2026-03-09T10:00:00Z", Transcript: "not interested"},
	}

	r := AnalyzeDay(records, "2026-03-10")
	assert.Equal(t, 4, r.Calls)
	assert.Equal(t, 3, r.Contacted)
	assert.Equal(t, 1, r.Booked)
	assert.Equal(t, "33.3", r.ConversionRate)
	assert.Equal(t, float64(80), r.AvgDuration)
	assert.Equal(t, 3, r.TranscriptsAnalyzed)

	require.NotEmpty(t, r.Objections)
	assert.Equal(t, ObjectionCount{Label: "Price / cost", Count: 2}, r.Objections[0])
	labels := make([]string, len(r.Objections))
	for i, o := range r.Objections {
		labels[i] = o.Label
	}
	assert.Contains(t, labels, "Not interested")
	assert.Contains(t, labels, "Call back later")
	assert.Contains(t, labels, "Needs to consult someone")
}

func TestCalldash_Analytics_ClassifyObjections(t *testing.T) {
	t.Parallel()

	t.Run("counts a category once per record", func(t *testing.T) {
		t.Parallel()
		out := ClassifyObjections([]leads.Record{{Transcript: "not interested, really not interested, no thanks"}})
		require.Len(t, out, 1)
		assert.Equal(t, ObjectionCount{Label: "Not interested", Count: 1}, out[0])
	})

	t.Run("ties keep rule order", func(t *testing.T) {
		t.Parallel()
		out := ClassifyObjections([]leads.Record{{Transcript: "stop calling me, this is a scam and not interested"}})
		require.Len(t, out, 3)
		assert.Equal(t, "Not interested", out[0].Label)
		assert.Equal(t, "Do not call", out[1].Label)
		assert.Equal(t, "Trust concern", out[2].Label)
	})

	t.Run("returns at most ten categories", func(t *testing.T) {
		t.Parallel()
		all := strings.Join([]string{
			"not interested", "too expensive", "bad time", "call back", "already have one",
			"my wife", "do not call", "scam", "email me", "renting", "wrong number", "don't need",
		}, ". ")
		out := ClassifyObjections([]leads.Record{{Transcript: all}})
		assert.Len(t, out, 10)
	})
}

func TestCalldash_Analytics_NarrativeSample(t *testing.T) {
	t.Parallel()

	t.Run("all booked plus five per other outcome", func(t *testing.T) {
		t.Parallel()
		var records []leads.Record
		for i := range 8 {
			records = append(records, leads.Record{Name: fmt.Sprintf("Booked %d", i), Outcome: "Booked"})
		}
		for i := range 9 {
			records = append(records, leads.Record{Name: fmt.Sprintf("VM %d", i), Outcome: "Voicemail"})
		}
		records = append(records, leads.Record{Outcome: ""})

		sample := NarrativeSample(records)
		counts := map[string]int{}
		for _, s := range sample {
			counts[s.Outcome]++
		}
		assert.Equal(t, map[string]int{"Booked": 8, "Voicemail": 5, "No Outcome": 1}, counts)
	})

	t.Run("capped at fifty with booked first", func(t *testing.T) {
		t.Parallel()
		var records []leads.Record
		for range 20 {
			records = append(records, leads.Record{Outcome: "No Answer"})
		}
		for range 60 {
			records = append(records, leads.Record{Outcome: "Booked"})
		}
		sample := NarrativeSample(records)
		require.Len(t, sample, 50)
		for _, s := range sample {
			assert.Equal(t, "Booked", s.Outcome)
		}
	})

	t.Run("transcripts are truncated", func(t *testing.T) {
		t.Parallel()
		long := strings.Repeat("é", 1000)
		sample := NarrativeSample([]leads.Record{{Outcome: "Booked", Transcript: long}})
		require.Len(t, sample, 1)
		assert.LessOrEqual(t, len(sample[0].Transcript), 1500)
		assert.True(t, strings.HasPrefix(long, sample[0].Transcript))
	})
}
