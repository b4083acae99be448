package view

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	DefaultSort = "lastCallDate"
)

// Query is the parsed form of a leads request. Set-valued filters are nil when absent.
type Query struct {
	Search      string
	Statuses    map[string]struct{}
	Outcomes    map[string]struct{}
	Agents      map[string]struct{}
	DateFrom    string
	DateTo      string
	MinDuration float64
	Sort        string
	Desc        bool
	Page        int
	Limit       int
}

// ParseQuery reads search, status, outcome, agent, dateFrom, dateTo, minDuration,
// sort, dir, page and limit. Invalid values fall back to defaults.
func ParseQuery(v url.Values) Query {
	q := Query{
		Search:   strings.TrimSpace(v.Get("search")),
		Statuses: parseSet(v.Get("status")),
		Outcomes: parseSet(v.Get("outcome")),
		Agents:   parseSet(v.Get("agent")),
		DateFrom: strings.TrimSpace(v.Get("dateFrom")),
		DateTo:   strings.TrimSpace(v.Get("dateTo")),
		Sort:     DefaultSort,
		Desc:     true,
		Page:     1,
		Limit:    DefaultLimit,
	}

	if s := v.Get("minDuration"); s != "" {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil && parsed > 0 {
			q.MinDuration = parsed
		}
	}
	if s := v.Get("sort"); s != "" {
		if _, ok := sortFields[s]; ok {
			q.Sort = s
		}
	}
	if v.Get("dir") == "asc" {
		q.Desc = false
	}
	if s := v.Get("page"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			q.Page = parsed
		}
	}
	if s := v.Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			q.Limit = clampLimit(parsed)
		}
	}
	return q
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func parseSet(s string) map[string]struct{} {
	if s == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			set[part] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
