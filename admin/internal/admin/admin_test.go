package admin

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/malbeclabs/calldash/api/crm"
	"github.com/malbeclabs/calldash/api/leads"
	"github.com/malbeclabs/calldash/api/view"
	dashtesting "github.com/malbeclabs/calldash/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	snap *leads.Snapshot
	err  error
}

func (m *mockSource) Fetch(ctx context.Context) (*leads.Snapshot, error) {
	return m.snap, m.err
}

type mockArchiver struct {
	archiveFunc func(ctx context.Context, records []leads.Record) (string, error)
	calls       int
}

func (m *mockArchiver) Archive(ctx context.Context, records []leads.Record) (string, error) {
	m.calls++
	return m.archiveFunc(ctx, records)
}

type mockUpdater struct {
	mu         sync.Mutex
	updated    map[string]map[string]any
	updateFunc func(id string) error
}

func (m *mockUpdater) Update(ctx context.Context, id string, fields map[string]any) (*crm.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateFunc != nil {
		if err := m.updateFunc(id); err != nil {
			return nil, err
		}
	}
	if m.updated == nil {
		m.updated = make(map[string]map[string]any)
	}
	m.updated[id] = fields
	return &crm.Record{ID: id, Fields: fields}, nil
}

func testSnapshot() *leads.Snapshot {
	return &leads.Snapshot{
		Records: []leads.Record{
			{ID: "rec1", Name: "Ada Lovelace", Status: leads.StatusBooked, Outcome: leads.OutcomeBooked, LastCallDate: "2026-03-10T09:15:00.000Z", Duration: 95},
			{ID: "rec2", Name: "Alan Turing", Status: leads.StatusContacted, Outcome: leads.OutcomeVoicemail, LastCallDate: "2026-03-10T11:40:00.000Z", RecordingURL: "https://rec.example/2.wav", ProbedDuration: 41.6},
			{ID: "rec3", Name: "Grace Hopper", Status: leads.StatusNew, LastCallDate: "2026-03-01T08:00:00.000Z", RecordingURL: "https://rec.example/3.wav"},
			{ID: "rec4", Name: "Edsger Dijkstra", Status: leads.StatusContacted, Outcome: leads.OutcomeNoAnswer, LastCallDate: "2026-03-09T16:00:00.000Z", RecordingURL: "https://rec.example/4.wav", ProbedDuration: 12.2},
		},
		CapturedAt: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}
}

func TestCalldash_Admin_ExportCSV(t *testing.T) {
	t.Parallel()

	t.Run("filters and sorts before writing", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		q := view.ParseQuery(url.Values{"status": {"Contacted"}, "sort": {"name"}, "dir": {"asc"}})
		err := ExportCSV(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, q, &buf)
		require.NoError(t, err)

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 3)
		assert.True(t, bytes.HasPrefix(lines[0], []byte("ID,Name,")))
		assert.True(t, bytes.HasPrefix(lines[1], []byte("rec2,Alan Turing,")))
		assert.True(t, bytes.HasPrefix(lines[2], []byte("rec4,Edsger Dijkstra,")))
	})

	t.Run("returns fetch errors", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		err := ExportCSV(t.Context(), dashtesting.NewLogger(), &mockSource{err: errors.New("boom")}, view.Query{}, &buf)
		require.ErrorContains(t, err, "failed to fetch leads")
		assert.Zero(t, buf.Len())
	})
}

func TestCalldash_Admin_ArchiveSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("uploads the full snapshot", func(t *testing.T) {
		t.Parallel()
		archiver := &mockArchiver{archiveFunc: func(ctx context.Context, records []leads.Record) (string, error) {
			assert.Len(t, records, 4)
			return "exports/2026-03-10T14-00-00Z.csv", nil
		}}
		key, err := ArchiveSnapshot(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, archiver, false)
		require.NoError(t, err)
		assert.Equal(t, "exports/2026-03-10T14-00-00Z.csv", key)
		assert.Equal(t, 1, archiver.calls)
	})

	t.Run("dry run skips the upload", func(t *testing.T) {
		t.Parallel()
		archiver := &mockArchiver{}
		key, err := ArchiveSnapshot(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, archiver, true)
		require.NoError(t, err)
		assert.Empty(t, key)
		assert.Zero(t, archiver.calls)
	})

	t.Run("propagates upload errors", func(t *testing.T) {
		t.Parallel()
		archiver := &mockArchiver{archiveFunc: func(ctx context.Context, records []leads.Record) (string, error) {
			return "", errors.New("access denied")
		}}
		_, err := ArchiveSnapshot(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, archiver, false)
		require.ErrorContains(t, err, "access denied")
	})
}

func TestCalldash_Admin_WriteReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	require.NoError(t, WriteReport(t.Context(), &mockSource{snap: testSnapshot()}, "2026-03-10", now, &buf))

	var report struct {
		Date       string         `json:"date"`
		TotalCalls int            `json:"totalCalls"`
		Outcomes   map[string]int `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "2026-03-10", report.Date)
	assert.Equal(t, 2, report.TotalCalls)
	assert.Equal(t, 1, report.Outcomes[leads.OutcomeBooked])
	assert.Equal(t, 1, report.Outcomes[leads.OutcomeVoicemail])
}

func TestCalldash_Admin_BackfillDurations(t *testing.T) {
	t.Parallel()

	t.Run("updates probed records only", func(t *testing.T) {
		t.Parallel()
		store := &mockUpdater{}
		result, err := BackfillDurations(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, store, BackfillDurationsConfig{MaxConcurrency: 2})
		require.NoError(t, err)

		assert.Equal(t, BackfillResult{Candidates: 2, Updated: 2}, result)
		assert.Equal(t, map[string]any{leads.FieldDuration: 42.0}, store.updated["rec2"])
		assert.Equal(t, map[string]any{leads.FieldDuration: 12.0}, store.updated["rec4"])
		assert.NotContains(t, store.updated, "rec1")
		assert.NotContains(t, store.updated, "rec3")
	})

	t.Run("dry run does not write", func(t *testing.T) {
		t.Parallel()
		store := &mockUpdater{}
		result, err := BackfillDurations(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, store, BackfillDurationsConfig{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Candidates)
		assert.Zero(t, result.Updated)
		assert.Empty(t, store.updated)
	})

	t.Run("counts failures and continues", func(t *testing.T) {
		t.Parallel()
		store := &mockUpdater{updateFunc: func(id string) error {
			if id == "rec2" {
				return &crm.UpstreamError{Op: "update", StatusCode: 422}
			}
			return nil
		}}
		result, err := BackfillDurations(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, store, BackfillDurationsConfig{})
		require.NoError(t, err)
		assert.Equal(t, BackfillResult{Candidates: 2, Updated: 1, Failed: 1}, result)
		assert.Contains(t, store.updated, "rec4")
	})

	t.Run("requires an updater", func(t *testing.T) {
		t.Parallel()
		_, err := BackfillDurations(t.Context(), dashtesting.NewLogger(), &mockSource{snap: testSnapshot()}, nil, BackfillDurationsConfig{})
		require.ErrorContains(t, err, "updater is required")
	})
}
