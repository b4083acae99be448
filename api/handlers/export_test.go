package handlers_test

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/malbeclabs/calldash/api/export"
	"github.com/malbeclabs/calldash/api/handlers"
	"github.com/malbeclabs/calldash/api/leads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockArchiver struct {
	archiveFunc func(ctx context.Context, records []leads.Record) (string, error)
}

func (m *mockArchiver) Archive(ctx context.Context, records []leads.Record) (string, error) {
	return m.archiveFunc(ctx, records)
}

func TestCalldash_Handlers_ExportCSV(t *testing.T) {
	t.Parallel()

	t.Run("exports every lead", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/api/export.csv", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Equal(t, "attachment; filename=leads-2026-03-10.csv", rec.Header().Get("Content-Disposition"))

		rows, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, export.Columns, rows[0])
		assert.Equal(t, `said "hi", later`, rows[3][12])
	})

	t.Run("honors list filters", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/api/export.csv?outcome=Voicemail", "")
		require.Equal(t, http.StatusOK, rec.Code)
		rows, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "rec2", rows[1][0])
	})
}

func TestCalldash_Handlers_ArchiveExport(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodPost, "/api/export/archive", "").Code)
	})

	t.Run("archives the snapshot", func(t *testing.T) {
		t.Parallel()
		a := &mockArchiver{archiveFunc: func(ctx context.Context, records []leads.Record) (string, error) {
			return "exports/2026-03-10T15-00-00Z.csv", nil
		}}
		ts := newTestServer(t, func(cfg *handlers.ServerConfig) { cfg.Archiver = a })
		rec := ts.do(t, http.MethodPost, "/api/export/archive", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"key":"exports/2026-03-10T15-00-00Z.csv","records":3}`, rec.Body.String())
	})

	t.Run("upload failure", func(t *testing.T) {
		t.Parallel()
		a := &mockArchiver{archiveFunc: func(ctx context.Context, records []leads.Record) (string, error) {
			return "", errors.New("AccessDenied")
		}}
		ts := newTestServer(t, func(cfg *handlers.ServerConfig) { cfg.Archiver = a })
		rec := ts.do(t, http.MethodPost, "/api/export/archive", "")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "failed to archive export", decode[errorBody](t, rec).Error)
	})
}

func TestCalldash_Handlers_DownloadRecording(t *testing.T) {
	t.Parallel()

	newRecordingHost := func(t *testing.T, handler http.HandlerFunc) *httptest.Server {
		t.Helper()
		srv := httptest.NewTLSServer(handler)
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("rejects insecure urls", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		for _, target := range []string{
			"/api/recordings/download",
			"/api/recordings/download?url=http://example.com/a.wav",
			"/api/recordings/download?url=ftp://example.com/a.wav",
			"/api/recordings/download?url=https://",
		} {
			assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, target, "").Code, target)
		}
	})

	t.Run("streams the recording as an attachment", func(t *testing.T) {
		t.Parallel()
		payload := strings.Repeat("RIFF", 64)
		host := newRecordingHost(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rec/1.wav", r.URL.Path)
			w.Header().Set("Content-Type", "audio/x-wav")
			_, _ = io.WriteString(w, payload)
		})
		ts := newTestServer(t, func(cfg *handlers.ServerConfig) { cfg.HTTPClient = host.Client() })

		rec := ts.do(t, http.MethodGet, "/api/recordings/download?url="+host.URL+"/rec/1.wav&name=Ada+Lovelace+/+call+%231", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/x-wav", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="Ada_Lovelace_call_1.wav"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, payload, rec.Body.String())
	})

	t.Run("defaults content type and filename", func(t *testing.T) {
		t.Parallel()
		host := newRecordingHost(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte{0, 1, 2, 3})
		})
		ts := newTestServer(t, func(cfg *handlers.ServerConfig) { cfg.HTTPClient = host.Client() })

		rec := ts.do(t, http.MethodGet, "/api/recordings/download?url="+host.URL+"/x", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="recording.wav"`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("upstream failure is a bad gateway", func(t *testing.T) {
		t.Parallel()
		host := newRecordingHost(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		ts := newTestServer(t, func(cfg *handlers.ServerConfig) { cfg.HTTPClient = host.Client() })

		rec := ts.do(t, http.MethodGet, "/api/recordings/download?url="+host.URL+"/gone.wav", "")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "recording host returned 404", decode[errorBody](t, rec).Error)
	})
}
