package view

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/malbeclabs/calldash/api/leads"
)

const (
	dateLayout = "2006-01-02"
	trendDays  = 7

	NotAvailable = "N/A"
)

type TrendPoint struct {
	Date   string `json:"date"`
	Calls  int    `json:"calls"`
	Booked int    `json:"booked"`
}

type Stats struct {
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"byStatus"`
	Contacted         int            `json:"contacted"`
	Booked            int            `json:"booked"`
	TodayCalls        int            `json:"todayCalls"`
	YesterdayCalls    int            `json:"yesterdayCalls"`
	ConversionRate    string         `json:"conversionRate"`
	AvgDuration       float64        `json:"avgDuration"`
	AvgAttemptsToBook string         `json:"avgAttemptsToBook"`
	Trend             []TrendPoint   `json:"trend"`
}

// ComputeStats summarizes all records. Calls are attributed to a day by the date
// prefix of LastCallDate.
func ComputeStats(records []leads.Record, now time.Time) Stats {
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)

	s := Stats{
		Total:    len(records),
		ByStatus: make(map[string]int),
	}

	var durationSum float64
	var durationN int
	var attemptsSum, attemptsN int
	perDay := make(map[string]*TrendPoint)

	for _, r := range records {
		if r.Status != "" {
			s.ByStatus[r.Status]++
		}
		if IsContacted(r) {
			s.Contacted++
		}
		if r.Status == leads.StatusBooked {
			s.Booked++
			if r.Attempts > 0 {
				attemptsSum += r.Attempts
				attemptsN++
			}
		}
		if strings.HasPrefix(r.LastCallDate, today) {
			s.TodayCalls++
		}
		if strings.HasPrefix(r.LastCallDate, yesterday) {
			s.YesterdayCalls++
		}
		if r.ProbedDuration > 0 {
			durationSum += r.ProbedDuration
			durationN++
		}
		if len(r.LastCallDate) >= len(dateLayout) {
			day := r.LastCallDate[:len(dateLayout)]
			p := perDay[day]
			if p == nil {
				p = &TrendPoint{Date: day}
				perDay[day] = p
			}
			p.Calls++
			if r.Outcome == leads.OutcomeBooked {
				p.Booked++
			}
		}
	}

	s.ConversionRate = Rate(s.Booked, s.Contacted)
	if durationN > 0 {
		s.AvgDuration = math.Round(durationSum / float64(durationN))
	}
	s.AvgAttemptsToBook = NotAvailable
	if attemptsN > 0 {
		s.AvgAttemptsToBook = fmt.Sprintf("%.1f", float64(attemptsSum)/float64(attemptsN))
	}
	s.Trend = DailySeries(perDay, now, trendDays)
	return s
}

// IsContacted reports whether the lead has moved past New.
func IsContacted(r leads.Record) bool {
	return r.Status != "" && r.Status != leads.StatusNew
}

// Rate formats num/den as a percentage with one decimal, "0.0" when den is 0.
func Rate(num, den int) string {
	if den == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(num)/float64(den)*100)
}

// DailySeries returns one point per day for the trailing days ending today, oldest first.
func DailySeries(perDay map[string]*TrendPoint, now time.Time, days int) []TrendPoint {
	out := make([]TrendPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format(dateLayout)
		if p := perDay[day]; p != nil {
			out = append(out, *p)
			continue
		}
		out = append(out, TrendPoint{Date: day})
	}
	return out
}
