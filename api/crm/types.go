package crm

// Record is the raw upstream envelope of a single row.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Page is one page of a list call. Offset is the continuation cursor; empty on the last page.
type Page struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// ListParams controls a single list-page request.
type ListParams struct {
	PageSize      int
	SortField     string
	SortDirection string // "asc" or "desc"
	Offset        string
}

type fieldsBody struct {
	Fields map[string]any `json:"fields"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
