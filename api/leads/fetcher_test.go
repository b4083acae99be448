package leads

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/malbeclabs/calldash/api/crm"
	dashtesting "github.com/malbeclabs/calldash/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	listPageFunc func(ctx context.Context, params crm.ListParams) (*crm.Page, error)
}

func (m *mockLister) ListPage(ctx context.Context, params crm.ListParams) (*crm.Page, error) {
	return m.listPageFunc(ctx, params)
}

type mockProber struct {
	mu     sync.Mutex
	calls  []string
	result float64
}

func (m *mockProber) Probe(ctx context.Context, url string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)
	return m.result
}

func TestCalldash_Leads_FetcherConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("returns error when lister is missing", func(t *testing.T) {
		t.Parallel()
		cfg := FetcherConfig{Logger: dashtesting.NewLogger(), Prober: &mockProber{}}
		require.ErrorContains(t, cfg.Validate(), "lister is required")
	})

	t.Run("sets defaults", func(t *testing.T) {
		t.Parallel()
		cfg := FetcherConfig{Logger: dashtesting.NewLogger(), Lister: &mockLister{}, Prober: &mockProber{}}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 100, cfg.PageSize)
		assert.Equal(t, "Last Call Date", cfg.SortField)
		assert.NotNil(t, cfg.Clock)
	})
}

func TestCalldash_Leads_Fetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("follows offsets and concatenates pages in order", func(t *testing.T) {
		t.Parallel()
		var seen []string
		lister := &mockLister{listPageFunc: func(ctx context.Context, params crm.ListParams) (*crm.Page, error) {
			assert.Equal(t, 100, params.PageSize)
			assert.Equal(t, "Last Call Date", params.SortField)
			assert.Equal(t, "desc", params.SortDirection)
			seen = append(seen, params.Offset)
			switch params.Offset {
			case "":
				return &crm.Page{Records: []crm.Record{{ID: "r1"}, {ID: "r2"}}, Offset: "p2"}, nil
			case "p2":
				return &crm.Page{Records: []crm.Record{{ID: "r3"}}}, nil
			}
			t.Fatalf("unexpected offset %q", params.Offset)
			return nil, nil
		}}

		f, err := NewFetcher(FetcherConfig{Logger: dashtesting.NewLogger(), Lister: lister, Prober: &mockProber{}})
		require.NoError(t, err)

		snap, err := f.Fetch(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []string{"", "p2"}, seen)
		require.Len(t, snap.Records, 3)
		assert.Equal(t, "r1", snap.Records[0].ID)
		assert.Equal(t, "r3", snap.Records[2].ID)
		assert.Len(t, snap.Raw, 3)
	})

	t.Run("probes only records missing a duration", func(t *testing.T) {
		t.Parallel()
		lister := &mockLister{listPageFunc: func(ctx context.Context, params crm.ListParams) (*crm.Page, error) {
			return &crm.Page{Records: []crm.Record{
				{ID: "with-duration", Fields: map[string]any{"Recording URL": "https://x/a.wav", "Call Duration": float64(30)}},
				{ID: "needs-probe", Fields: map[string]any{"Recording URL": "https://x/b.wav"}},
				{ID: "no-recording", Fields: map[string]any{}},
			}}, nil
		}}
		prober := &mockProber{result: 77}

		f, err := NewFetcher(FetcherConfig{Logger: dashtesting.NewLogger(), Lister: lister, Prober: prober})
		require.NoError(t, err)

		snap, err := f.Fetch(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []string{"https://x/b.wav"}, prober.calls)
		assert.Equal(t, float64(30), snap.Records[0].ProbedDuration)
		assert.Equal(t, float64(77), snap.Records[1].ProbedDuration)
		assert.Zero(t, snap.Records[2].ProbedDuration)
	})

	t.Run("page failure returns the upstream error and no snapshot", func(t *testing.T) {
		t.Parallel()
		lister := &mockLister{listPageFunc: func(ctx context.Context, params crm.ListParams) (*crm.Page, error) {
			if params.Offset == "" {
				return &crm.Page{Records: []crm.Record{{ID: "r1"}}, Offset: "p2"}, nil
			}
			return nil, &crm.UpstreamError{Op: "list", StatusCode: http.StatusInternalServerError, Body: "boom"}
		}}

		f, err := NewFetcher(FetcherConfig{Logger: dashtesting.NewLogger(), Lister: lister, Prober: &mockProber{}})
		require.NoError(t, err)

		snap, err := f.Fetch(t.Context())
		require.Nil(t, snap)
		var ue *crm.UpstreamError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "boom", ue.Body)
	})

	t.Run("repeated offset is an error", func(t *testing.T) {
		t.Parallel()
		lister := &mockLister{listPageFunc: func(ctx context.Context, params crm.ListParams) (*crm.Page, error) {
			return &crm.Page{Offset: "same"}, nil
		}}

		f, err := NewFetcher(FetcherConfig{Logger: dashtesting.NewLogger(), Lister: lister, Prober: &mockProber{}})
		require.NoError(t, err)

		_, err = f.Fetch(t.Context())
		require.ErrorContains(t, err, "repeated offset")
	})
}
