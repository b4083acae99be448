package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/calldash/api/leads"
	dashtesting "github.com/malbeclabs/calldash/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCalldash_Export_WriteCSV(t *testing.T) {
	t.Parallel()

	t.Run("quotes commas and quotes in notes", func(t *testing.T) {
		t.Parallel()
		notes := `Said "call after 5", prefers email`
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, []leads.Record{{
			ID: "rec1", Name: "Ada", AgentName: "Morgan", ProbedDuration: 42, Attempts: 2, Notes: notes,
		}}))

		assert.Contains(t, buf.String(), `"Said ""call after 5"", prefers email"`)

		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, Columns, rows[0])
		assert.Equal(t, "Morgan", rows[1][7])
		assert.Equal(t, "42", rows[1][9])
		assert.Equal(t, "2", rows[1][10])
		assert.Equal(t, notes, rows[1][12])
	})

	t.Run("cells survive a round trip", func(t *testing.T) {
		t.Parallel()
		rapid.Check(t, func(t *rapid.T) {
			notes := rapid.StringOf(rapid.SampledFrom([]rune{'a', 'Z', ' ', ',', '"', '\n', 'é', '1'})).Draw(t, "notes")
			name := rapid.String().Draw(t, "name")

			var buf bytes.Buffer
			if err := WriteCSV(&buf, []leads.Record{{ID: "r", Name: name, Notes: notes}}); err != nil {
				t.Fatalf("write: %v", err)
			}
			rows, err := csv.NewReader(&buf).ReadAll()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got := rows[1][12]; got != normalizeNewlines(notes) {
				t.Fatalf("notes %q came back as %q", notes, got)
			}
		})
	})
}

// encoding/csv reads \r\n inside quoted fields back as \n.
func normalizeNewlines(s string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte("\r\n"), []byte("\n")))
}

type mockUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (m *mockUploader) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.input = params
	m.body, _ = io.ReadAll(params.Body)
	if m.err != nil {
		return nil, m.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestCalldash_Export_Archiver(t *testing.T) {
	t.Parallel()

	t.Run("returns error when bucket is missing", func(t *testing.T) {
		t.Parallel()
		_, err := NewArchiver(ArchiverConfig{Logger: dashtesting.NewLogger(), Client: &mockUploader{}})
		require.ErrorContains(t, err, "bucket is required")
	})

	t.Run("uploads csv under a timestamped key", func(t *testing.T) {
		t.Parallel()
		clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 14, 5, 9, 0, time.UTC))
		up := &mockUploader{}
		a, err := NewArchiver(ArchiverConfig{
			Logger: dashtesting.NewLogger(),
			Clock:  clock,
			Client: up,
			Bucket: "calldash-exports",
		})
		require.NoError(t, err)

		key, err := a.Archive(t.Context(), []leads.Record{{ID: "rec1"}})
		require.NoError(t, err)
		assert.Equal(t, "exports/2026-03-10T14-05-09Z.csv", key)
		assert.Equal(t, "calldash-exports", aws.ToString(up.input.Bucket))
		assert.Equal(t, "text/csv", aws.ToString(up.input.ContentType))
		assert.Contains(t, string(up.body), "rec1")
	})

	t.Run("upload failure is returned", func(t *testing.T) {
		t.Parallel()
		a, err := NewArchiver(ArchiverConfig{
			Logger: dashtesting.NewLogger(),
			Client: &mockUploader{err: errors.New("access denied")},
			Bucket: "b",
		})
		require.NoError(t, err)

		_, err = a.Archive(t.Context(), nil)
		require.ErrorContains(t, err, "access denied")
	})
}
