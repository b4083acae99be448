package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const maxFilenameLength = 100

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename keeps a label usable inside a quoted Content-Disposition filename.
func sanitizeFilename(name string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".wav")
	name = strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "_"), "_.")
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	if name == "" {
		return "recording"
	}
	return name
}

// DownloadRecording streams an https-hosted recording back as an attachment.
func (s *Server) DownloadRecording(w http.ResponseWriter, r *http.Request) {
	target, err := url.Parse(r.URL.Query().Get("url"))
	if err != nil || target.Scheme != "https" || target.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an https URL")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "url must be an https URL")
		return
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, s.internalError("failed to fetch recording", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("recording host returned %d", resp.StatusCode))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/wav"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.wav"`, sanitizeFilename(r.URL.Query().Get("name"))))
	if resp.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Debug("recordings: copy interrupted", "error", err)
	}
}
