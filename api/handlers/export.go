package handlers

import (
	"fmt"
	"net/http"

	"github.com/malbeclabs/calldash/api/export"
	"github.com/malbeclabs/calldash/api/view"
)

// ExportCSV downloads every lead matching the list filters, unpaginated.
func (s *Server) ExportCSV(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Cache.Get(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "failed to fetch leads", err, false)
		return
	}

	q := view.ParseQuery(r.URL.Query())
	records := view.Filter(snap.Records, q)
	view.Sort(records, q.Sort, q.Desc)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=leads-%s.csv", s.now().Format(dateLayout)))
	if err := export.WriteCSV(w, records); err != nil {
		s.log.Error("export: failed to write csv", "error", err)
	}
}

type archiveResponse struct {
	Key     string `json:"key"`
	Records int    `json:"records"`
}

// ArchiveExport uploads the full snapshot as CSV to the configured bucket.
func (s *Server) ArchiveExport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "export archival is not configured")
		return
	}
	snap, err := s.cfg.Cache.Get(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "failed to fetch leads", err, false)
		return
	}
	key, err := s.cfg.Archiver.Archive(r.Context(), snap.Records)
	if err != nil {
		writeError(w, http.StatusBadGateway, s.internalError("failed to archive export", err))
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{Key: key, Records: snap.Len()})
}
