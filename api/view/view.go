package view

import (
	"sort"
	"strings"
	"time"

	"github.com/malbeclabs/calldash/api/leads"
)

type sortField struct {
	numeric bool
	str     func(leads.Record) string
	num     func(leads.Record) float64
}

var sortFields = map[string]sortField{
	"name":            {str: func(r leads.Record) string { return r.Name }},
	"phone":           {str: func(r leads.Record) string { return r.Phone }},
	"email":           {str: func(r leads.Record) string { return r.Email }},
	"address":         {str: func(r leads.Record) string { return r.Address }},
	"status":          {str: func(r leads.Record) string { return r.Status }},
	"outcome":         {str: func(r leads.Record) string { return r.Outcome }},
	"agent":           {str: func(r leads.Record) string { return r.AgentName }},
	"lastCallDate":    {str: func(r leads.Record) string { return r.LastCallDate }},
	"appointmentDate": {str: func(r leads.Record) string { return r.AppointmentDate }},
	"createdTime":     {str: func(r leads.Record) string { return r.CreatedTime }},
	"duration":        {numeric: true, num: func(r leads.Record) float64 { return r.ProbedDuration }},
	"attempts":        {numeric: true, num: func(r leads.Record) float64 { return float64(r.Attempts) }},
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type FilterOptions struct {
	Statuses []string `json:"statuses"`
	Outcomes []string `json:"outcomes"`
	Agents   []string `json:"agents"`
}

type Response struct {
	Leads         []leads.Record `json:"leads"`
	Pagination    Pagination     `json:"pagination"`
	Stats         Stats          `json:"stats"`
	FilterOptions FilterOptions  `json:"filterOptions"`
	CapturedAt    time.Time      `json:"capturedAt"`
}

// Build filters, sorts and pages the snapshot. Stats and filter options always
// describe the whole snapshot. now should already be in the dashboard time zone.
func Build(snap *leads.Snapshot, q Query, now time.Time) Response {
	var records []leads.Record
	var capturedAt time.Time
	if snap != nil {
		records = snap.Records
		capturedAt = snap.CapturedAt
	}

	matched := Filter(records, q)
	Sort(matched, q.Sort, q.Desc)
	page, pagination := Paginate(matched, q.Page, q.Limit)

	return Response{
		Leads:         page,
		Pagination:    pagination,
		Stats:         ComputeStats(records, now),
		FilterOptions: Options(records),
		CapturedAt:    capturedAt,
	}
}

// Filter returns a new slice with the records matching every filter in q.
func Filter(records []leads.Record, q Query) []leads.Record {
	search := strings.ToLower(q.Search)
	var dateTo string
	if q.DateTo != "" {
		dateTo = q.DateTo + "T23:59:59.999Z"
	}

	out := make([]leads.Record, 0, len(records))
	for _, r := range records {
		if search != "" {
			hay := strings.ToLower(r.Name + " " + r.Phone + " " + r.Address + " " + r.Email)
			if !strings.Contains(hay, search) {
				continue
			}
		}
		if !inSet(q.Statuses, r.Status) || !inSet(q.Outcomes, r.Outcome) || !inSet(q.Agents, r.AgentName) {
			continue
		}
		if q.DateFrom != "" && r.LastCallDate < q.DateFrom {
			continue
		}
		if dateTo != "" && r.LastCallDate > dateTo {
			continue
		}
		if q.MinDuration > 0 && r.ProbedDuration < q.MinDuration {
			continue
		}
		out = append(out, r)
	}
	return out
}

func inSet(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[v]
	return ok
}

// Sort orders records in place by the named field. Equal keys keep their input order.
func Sort(records []leads.Record, field string, desc bool) {
	f, ok := sortFields[field]
	if !ok {
		f = sortFields[DefaultSort]
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if desc {
			a, b = b, a
		}
		if f.numeric {
			return f.num(a) < f.num(b)
		}
		return f.str(a) < f.str(b)
	})
}

// Paginate returns the 1-indexed page. Out-of-range pages are empty, not an error.
func Paginate(records []leads.Record, page, limit int) ([]leads.Record, Pagination) {
	limit = clampLimit(limit)
	if page < 1 {
		page = 1
	}
	total := len(records)
	p := Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}

	if page > p.Pages {
		return []leads.Record{}, p
	}
	start := (page - 1) * limit
	end := min(start+limit, total)
	return records[start:end], p
}

// Options lists the distinct non-empty values present, for populating filter controls.
func Options(records []leads.Record) FilterOptions {
	statuses := make(map[string]struct{})
	outcomes := make(map[string]struct{})
	agents := make(map[string]struct{})
	for _, r := range records {
		if r.Status != "" {
			statuses[r.Status] = struct{}{}
		}
		if r.Outcome != "" {
			outcomes[r.Outcome] = struct{}{}
		}
		if r.AgentName != "" && r.AgentName != leads.UnknownAgent {
			agents[r.AgentName] = struct{}{}
		}
	}
	return FilterOptions{
		Statuses: sortedKeys(statuses),
		Outcomes: sortedKeys(outcomes),
		Agents:   sortedKeys(agents),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
